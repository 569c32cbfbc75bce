package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"captionkit/internal/config"
	"captionkit/internal/portregistry"
	"captionkit/internal/review"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var port int
	var host string
	var concept string

	cmd := &cobra.Command{
		Use:   "review <dataset-dir>",
		Short: "Serve a review session for editing final captions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve dataset dir: %w", err)
			}

			return ctx.withRegistry(func(cfg *config.Config, store portregistry.Store) error {
				opts := review.Options{
					DatasetDir: dir,
					Host:       cfg.Review.Host,
					Port:       cfg.Review.Port,
					Name:       cfg.Review.Name,
					Concept:    concept,
				}
				if cmd.Flags().Changed("port") {
					opts.Port = port
				}
				if cmd.Flags().Changed("host") {
					opts.Host = host
				}

				session, err := review.NewSession(opts, store, logger)
				if err != nil {
					return err
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				if err := session.Start(runCtx); err != nil {
					return err
				}
				defer session.Stop()

				fmt.Fprintf(cmd.OutOrStdout(), "Review session for %s at %s (Ctrl+C to stop)\n", dir, session.URL())
				if !store.Tracking() {
					fmt.Fprintln(cmd.ErrOrStderr(), "Port registry not initialized; reservation not tracked (run 'captionkit ports init')")
				}
				<-runCtx.Done()
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (0 picks a free port)")
	cmd.Flags().StringVar(&host, "host", "", "Interface to bind")
	cmd.Flags().StringVar(&concept, "concept", "", "Concept label shown in the session info")
	return cmd
}
