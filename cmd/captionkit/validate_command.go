package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"captionkit/internal/config"
	"captionkit/internal/dataset"
	"captionkit/internal/validation"
)

type validateOutput struct {
	Path      string             `json:"path"`
	Records   int                `json:"records"`
	Issues    []validation.Issue `json:"issues"`
	IssuesCSV string             `json:"issues_csv,omitempty"`
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var write bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate <captions.json>",
		Short: "Re-run validation on an edited caption batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve captions path: %w", err)
			}
			records, err := dataset.LoadRecords(path)
			if err != nil {
				return err
			}

			issues := validation.Validate(records, validation.Options{
				MinTags:            cfg.Validation.MinTags,
				MaxTags:            cfg.Validation.MaxTags,
				DuplicateThreshold: cfg.Validation.DuplicateThreshold,
			})

			var issuesPath string
			if write {
				paths, err := dataset.WriteBatch(filepath.Dir(path), records, issues)
				if err != nil {
					return fmt.Errorf("write outputs: %w", err)
				}
				issuesPath = paths.IssuesCSV
			}

			if jsonOutput {
				return writeJSON(cmd, validateOutput{
					Path:      path,
					Records:   len(records),
					Issues:    nonNilIssues(issues),
					IssuesCSV: issuesPath,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Validated %d captions in %s\n", len(records), path)
			printIssues(out, issues, issuesPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Rewrite captions.csv and caption_issues.csv next to the input")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit issues as JSON")
	return cmd
}
