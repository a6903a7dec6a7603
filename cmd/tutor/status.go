package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/tutor/internal/models"
)

func newStatusCommand(a *app) *cobra.Command {
	var course string
	cmd := &cobra.Command{
		Use:   "status --course ID",
		Short: "Show the knowledge base state of a course",
		RunE: func(cmd *cobra.Command, _ []string) error {
			courseID := models.CourseID(course)
			count, err := a.index.Count(cmd.Context(), courseID)
			if err != nil {
				return err
			}

			kb := a.service.Status(courseID)
			// the registry only knows what this process ingested
			if kb.Status == models.StatusEmpty && count > 0 {
				kb.Status = models.StatusReady
				kb.Chunks = count
			}

			c := color.New(color.FgGreen)
			switch kb.Status {
			case models.StatusEmpty, models.StatusIngesting:
				c = color.New(color.FgYellow)
			case models.StatusPartial, models.StatusFailed:
				c = color.New(color.FgRed)
			}

			fmt.Printf("Course:   %s\n", courseID)
			fmt.Printf("Status:   %s\n", c.Sprint(kb.Status))
			fmt.Printf("Indexed:  %d chunks\n", count)
			if kb.Documents > 0 {
				fmt.Printf("Sources:  %d\n", kb.Documents)
			}
			if !kb.LastIngestedAt.IsZero() {
				fmt.Printf("Ingested: %s\n", kb.LastIngestedAt.Format("2006-01-02 15:04:05"))
			}
			if kb.LastError != "" {
				color.Red("Error:    %s", kb.LastError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&course, "course", "", "Course id")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}
