package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"captionkit/internal/preflight"
)

type statusOutput struct {
	ConfigPath string             `json:"config_path,omitempty"`
	Checks     []preflight.Result `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the captioning service, registry, and log directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if jsonOutput {
				return writeJSON(cmd, statusOutput{ConfigPath: ctx.configPath(), Checks: results})
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			lines := renderSectionHeader("System", colorize)
			lines = append(lines, preflightLines(results, colorize)...)
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Settings", colorize)...)
			lines = append(lines,
				renderStatusLine("Registry backend", statusInfo, cfg.Registry.Backend, colorize),
				renderStatusLine("Concurrency", statusInfo, strconv.Itoa(cfg.Captioner.Concurrency), colorize),
				renderStatusLine("Tagify by default", statusInfo, yesNo(cfg.Caption.Tagify), colorize),
			)
			for _, line := range lines {
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit check results as JSON")
	return cmd
}
