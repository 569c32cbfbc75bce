package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captionkit/internal/batch"
	"captionkit/internal/config"
	"captionkit/internal/dataset"
	"captionkit/internal/validation"
)

type captionRunOutput struct {
	RunID        string             `json:"run_id"`
	OutputDir    string             `json:"output_dir"`
	CaptionsJSON string             `json:"captions_json"`
	CaptionsCSV  string             `json:"captions_csv"`
	IssuesCSV    string             `json:"issues_csv,omitempty"`
	Records      []dataset.Record   `json:"records"`
	Issues       []validation.Issue `json:"issues"`
	DurationMS   int64              `json:"duration_ms"`
}

func newCaptionCommand(ctx *commandContext) *cobra.Command {
	var concept string
	var tagify bool
	var overwrite bool
	var instruction string
	var outputDir string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "caption <image-dir>",
		Short: "Caption every image in a directory and write the dataset files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			client, err := ctx.captionerClient(logger)
			if err != nil {
				return err
			}

			imageDir, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve image dir: %w", err)
			}
			if strings.TrimSpace(outputDir) != "" {
				if outputDir, err = config.ExpandPath(strings.TrimSpace(outputDir)); err != nil {
					return fmt.Errorf("resolve output dir: %w", err)
				}
			}
			if !cmd.Flags().Changed("tags") {
				tagify = cfg.Caption.Tagify
			}
			if !cmd.Flags().Changed("instruction") {
				instruction = cfg.Caption.Instruction
			}

			var opts []batch.Option
			if !jsonOutput {
				opts = append(opts, batch.WithProgress(progressPrinter(cmd.ErrOrStderr())))
			}
			runner := batch.NewRunner(cfg, client, logger, opts...)
			summary, err := runner.Run(cmd.Context(), batch.Request{
				ImageDir:    imageDir,
				OutputDir:   outputDir,
				Concept:     concept,
				Tagify:      tagify,
				Overwrite:   overwrite,
				Instruction: instruction,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, captionRunOutput{
					RunID:        summary.RunID,
					OutputDir:    summary.OutputDir,
					CaptionsJSON: summary.Paths.CaptionsJSON,
					CaptionsCSV:  summary.Paths.CaptionsCSV,
					IssuesCSV:    summary.IssuesPath,
					Records:      summary.Records,
					Issues:       nonNilIssues(summary.Issues),
					DurationMS:   summary.Duration.Milliseconds(),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Captioned %d images in %s\n", len(summary.Records), summary.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "Captions: %s\n", summary.Paths.CaptionsJSON)
			fmt.Fprintf(out, "CSV:      %s\n", summary.Paths.CaptionsCSV)
			printIssues(out, summary.Issues, summary.IssuesPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&concept, "concept", "", "Concept label anchored into every caption (required)")
	cmd.Flags().BoolVar(&tagify, "tags", false, "Convert captions into comma-separated tags")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing captions.json/captions.csv")
	cmd.Flags().StringVar(&instruction, "instruction", "", "Free-text guidance, e.g. \"ignore the background\"")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for output files (defaults to the image directory)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run summary as JSON")
	_ = cmd.MarkFlagRequired("concept")
	return cmd
}

func progressPrinter(w io.Writer) batch.ProgressFunc {
	return func(done, total int, image string) {
		fmt.Fprintf(w, "[%d/%d] %s\n", done, total, image)
	}
}

func printIssues(out io.Writer, issues []validation.Issue, issuesPath string) {
	if len(issues) == 0 {
		fmt.Fprintln(out, "No validation issues")
		return
	}
	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, []string{issue.Image, issue.Issue})
	}
	fmt.Fprintf(out, "%d validation issues", len(issues))
	if issuesPath != "" {
		fmt.Fprintf(out, " (written to %s)", issuesPath)
	}
	fmt.Fprintln(out, ":")
	fmt.Fprintln(out, renderTable([]tableColumn{
		{Header: "Image"},
		{Header: "Issue", Wrap: true},
	}, rows))
}

func nonNilIssues(issues []validation.Issue) []validation.Issue {
	if issues == nil {
		return []validation.Issue{}
	}
	return issues
}
