package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/tutor/internal/models"
)

func newAskCommand(a *app) *cobra.Command {
	var (
		course  string
		lang    string
		sources []string
	)
	cmd := &cobra.Command{
		Use:   "ask --course ID \"question\"",
		Short: "Answer one question from the course material",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sources) > 0 {
				report, err := a.loadAndIngest(cmd, models.CourseID(course), lang, sources, false)
				if err != nil {
					return err
				}
				printReport(report)
			}

			spinner := getSpinner("🔍 Searching the course...")
			answer, err := a.answer(cmd.Context(), models.Query{
				CourseID: models.CourseID(course),
				Question: strings.Join(args, " "),
			})
			_ = spinner.Finish()
			fmt.Print("\r")
			if err != nil {
				return err
			}
			printAnswer(answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&course, "course", "", "Course id")
	cmd.Flags().StringVar(&lang, "lang", "en", "Transcript language of --source")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Transcripts to ingest before asking")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func newChatCommand(a *app) *cobra.Command {
	var (
		course string
		lang   string
	)
	cmd := &cobra.Command{
		Use:   "chat --course ID [paths-or-urls...]",
		Short: "Ask questions interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID := models.CourseID(course)
			if len(args) > 0 {
				report, err := a.loadAndIngest(cmd, courseID, lang, args, false)
				if err != nil {
					return err
				}
				printReport(report)
			}

			color.Cyan("\nAsk about %s (type 'exit' to quit)", courseID)

			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()
			for {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}

				question := strings.TrimSpace(scanner.Text())
				if strings.ToLower(question) == "exit" {
					break
				}
				if question == "" {
					continue
				}

				spinner := getSpinner("🤖 Thinking...")
				answer, err := a.answer(cmd.Context(), models.Query{CourseID: courseID, Question: question})
				_ = spinner.Finish()
				fmt.Print("\r")
				if err != nil {
					color.Red("Error: %v\n", err)
					if cmd.Context().Err() != nil {
						return nil
					}
					continue
				}
				printAnswer(answer)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&course, "course", "", "Course id")
	cmd.Flags().StringVar(&lang, "lang", "en", "Transcript language")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}
