package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"captionkit/internal/config"
	"captionkit/internal/portregistry"
	"captionkit/internal/services/captioner"
)

// CheckCaptionerFromConfig evaluates the captioning service from config.
func CheckCaptionerFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Captioning service"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	return CheckCaptioner(ctx, name, captioner.Config{
		BaseURL:        cfg.Captioner.BaseURL,
		Task:           cfg.Captioner.Task,
		TimeoutSeconds: cfg.Captioner.TimeoutSeconds,
	})
}

// CheckRegistryFromConfig reports whether the port registry is usable and
// whether it is tracking reservations.
func CheckRegistryFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Port registry"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	path := cfg.Registry.Path

	if cfg.Registry.Backend == portregistry.BackendJSON {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (tracking disabled; run 'captionkit ports init')", path)}
		}
		if dir := CheckDirectoryAccess(name, filepath.Dir(path)); !dir.Passed {
			return dir
		}
	}

	store, err := portregistry.Open(cfg.Registry, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()

	entries, err := store.List(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s, %d reservations)", path, cfg.Registry.Backend, len(entries))}
}
