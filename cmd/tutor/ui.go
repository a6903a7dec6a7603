package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/tutor/internal/models"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printReport(r models.IngestionReport) {
	c := color.New(color.FgGreen)
	if r.Failed() > 0 {
		c = color.New(color.FgYellow)
	}
	c.Printf("\n✓ Course %s: %d documents, %d chunks written, %d skipped, %d superseded (%s)\n",
		r.CourseID, r.Documents, r.ChunksWritten, r.Skipped, r.Stale, r.Duration.Round(1e6))
	for _, e := range r.Errors {
		color.Red("  ✗ %v", e)
	}
}

func printAnswer(a models.Answer) {
	assistant := color.New(color.FgCyan).PrintfFunc()
	dim := color.New(color.Faint).PrintfFunc()

	assistant("\nTutor: %s\n", a.Text)
	dim("confidence %.2f · %s\n", a.Confidence, a.Latency.Round(1e6))

	if len(a.Sources) > 0 {
		color.New(color.Bold).Println("\nSources:")
		for i, s := range a.Sources {
			where := s.SourceRef
			if s.Time != nil {
				where += fmt.Sprintf(" @ %s-%s", clock(s.Time.Start), clock(s.Time.End))
			}
			fmt.Printf("  [%d] %s (%.2f)\n", i+1, color.BlueString(where), s.Score)
			dim("      %s\n", s.Preview)
		}
	}

	if len(a.FollowUps) > 0 {
		color.New(color.Bold).Println("\nYou might also ask:")
		for _, q := range a.FollowUps {
			fmt.Printf("  • %s\n", strings.TrimSpace(q))
		}
	}
}

func clock(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
