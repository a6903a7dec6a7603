package main

import (
	"fmt"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/tutor/internal/models"
)

func newIngestCommand(a *app) *cobra.Command {
	var (
		course  string
		lang    string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "ingest --course ID paths-or-urls...",
		Short: "Chunk, embed and index course transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.loadAndIngest(cmd, models.CourseID(course), lang, args, replace)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&course, "course", "", "Course id")
	cmd.Flags().StringVar(&lang, "lang", "en", "Transcript language")
	cmd.Flags().BoolVar(&replace, "replace", false, "Delete the course index before ingesting")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func (a *app) loadAndIngest(cmd *cobra.Command, courseID models.CourseID, lang string, refs []string, replace bool) (models.IngestionReport, error) {
	ctx := cmd.Context()

	var pages atomic.Int32
	spinner := getSpinner("📄 Loading transcripts...")
	docs, err := a.load(ctx, courseID, lang, refs, func(url string) {
		n := pages.Add(1)
		spinner.Describe(color.CyanString("📄 Loading transcripts... (%d pages)", n))
	})
	_ = spinner.Finish()
	if err != nil {
		return models.IngestionReport{}, err
	}
	if len(docs) == 0 {
		return models.IngestionReport{}, fmt.Errorf("no transcripts found in %v", refs)
	}
	color.Green("\n✓ Loaded %d documents\n", len(docs))

	bar := getProgressBar(len(docs), "🔄 Indexing...")
	a.progress = func(models.SourceDocument, error) { _ = bar.Add(1) }
	defer func() { a.progress = nil }()

	report, err := a.ingest(ctx, courseID, docs, replace)
	_ = bar.Finish()
	return report, err
}
