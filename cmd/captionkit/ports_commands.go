package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"captionkit/internal/config"
	"captionkit/internal/portregistry"
)

type portEntryOutput struct {
	Name        string `json:"name"`
	Port        int    `json:"port"`
	Kind        string `json:"kind"`
	ImageRef    string `json:"image_ref"`
	GPU         bool   `json:"gpu"`
	CacheFlag   bool   `json:"cache_flag"`
	StoragePath string `json:"storage_path"`
	Created     string `json:"created"`
}

func newPortsCommand(ctx *commandContext) *cobra.Command {
	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "Inspect and maintain the shared port registry",
	}

	portsCmd.AddCommand(newPortsListCommand(ctx))
	portsCmd.AddCommand(newPortsInitCommand(ctx))
	portsCmd.AddCommand(newPortsReserveCommand(ctx))
	portsCmd.AddCommand(newPortsReleaseCommand(ctx))

	return portsCmd
}

func newPortsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List port reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRegistry(func(cfg *config.Config, store portregistry.Store) error {
				entries, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					out := make([]portEntryOutput, 0, len(entries))
					for _, entry := range entries {
						out = append(out, portEntryOutput{
							Name:        entry.Name,
							Port:        entry.Port,
							Kind:        entry.Kind,
							ImageRef:    entry.ImageRef,
							GPU:         entry.GPU,
							CacheFlag:   entry.CacheFlag,
							StoragePath: entry.StoragePath,
							Created:     entry.Created.String(),
						})
					}
					return writeJSON(cmd, out)
				}

				stdout := cmd.OutOrStdout()
				if !store.Tracking() {
					fmt.Fprintf(stdout, "Registry %s not initialized; reservations are not tracked\n", cfg.Registry.Path)
					return nil
				}
				if len(entries) == 0 {
					fmt.Fprintln(stdout, "No reservations")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.Itoa(entry.Port),
						entry.Name,
						entry.Kind,
						yesNo(entry.GPU),
						entry.StoragePath,
						entry.Created.String(),
					})
				}
				fmt.Fprintln(stdout, renderTable([]tableColumn{
					{Header: "Port", Align: alignRight},
					{Header: "Name"},
					{Header: "Kind"},
					{Header: "GPU"},
					{Header: "Storage", Wrap: true},
					{Header: "Created"},
				}, rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit reservations as JSON")
	return cmd
}

func newPortsInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the registry so reservations are tracked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Registry.Backend == portregistry.BackendSQLite {
				return ctx.withRegistry(func(cfg *config.Config, _ portregistry.Store) error {
					fmt.Fprintf(out, "Registry ready at %s (sqlite)\n", cfg.Registry.Path)
					return nil
				})
			}
			created, err := portregistry.InitFile(cmd.Context(), cfg.Registry.Path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(out, "Created registry at %s\n", cfg.Registry.Path)
			} else {
				fmt.Fprintf(out, "Registry already exists at %s\n", cfg.Registry.Path)
			}
			return nil
		},
	}
}

func newPortsReserveCommand(ctx *commandContext) *cobra.Command {
	var storage string
	var kind string
	var imageRef string
	var gpu bool
	var cacheFlag bool

	cmd := &cobra.Command{
		Use:   "reserve <name> <port>",
		Short: "Reserve a port for a named service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			storagePath, err := resolveStorage(storage)
			if err != nil {
				return err
			}
			return ctx.withRegistry(func(_ *config.Config, store portregistry.Store) error {
				result, err := store.Reserve(cmd.Context(), portregistry.Request{
					Name:        strings.TrimSpace(args[0]),
					Port:        port,
					StoragePath: storagePath,
					Meta: portregistry.Meta{
						Kind:      kind,
						ImageRef:  imageRef,
						GPU:       gpu,
						CacheFlag: cacheFlag,
					},
				})
				if err != nil {
					var conflict *portregistry.ConflictError
					if errors.As(err, &conflict) {
						return fmt.Errorf("%w; release it with 'captionkit ports release %s %d --storage %s'",
							err, conflict.Holder, conflict.Port, conflict.StoragePath)
					}
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case !result.Tracked:
					fmt.Fprintf(out, "Port %d granted (registry not initialized; not tracked)\n", port)
				case result.AlreadyHeld:
					fmt.Fprintf(out, "Port %d already reserved by %s\n", port, result.Holder)
				default:
					fmt.Fprintf(out, "Reserved port %d for %s\n", port, result.Holder)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&storage, "storage", "", "Storage path identifying the owner (defaults to the working directory)")
	cmd.Flags().StringVar(&kind, "kind", "", "Service kind recorded with the reservation")
	cmd.Flags().StringVar(&imageRef, "image-ref", "", "Container image reference recorded with the reservation")
	cmd.Flags().BoolVar(&gpu, "gpu", false, "Mark the service as using a GPU")
	cmd.Flags().BoolVar(&cacheFlag, "cache", false, "Mark the service as using a model cache")
	return cmd
}

func newPortsReleaseCommand(ctx *commandContext) *cobra.Command {
	var storage string

	cmd := &cobra.Command{
		Use:   "release <name> <port>",
		Short: "Release a port reservation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			storagePath, err := resolveStorage(storage)
			if err != nil {
				return err
			}
			return ctx.withRegistry(func(_ *config.Config, store portregistry.Store) error {
				removed, err := store.Release(cmd.Context(), strings.TrimSpace(args[0]), storagePath, port)
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Released port %d\n", port)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No reservation for %s on port %d\n", args[0], port)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&storage, "storage", "", "Storage path identifying the owner (defaults to the working directory)")
	return cmd
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", value)
	}
	return port, nil
}

func resolveStorage(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = "."
	}
	if strings.HasPrefix(value, "~") {
		return config.ExpandPath(value)
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return abs, nil
}
