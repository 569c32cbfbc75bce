package portregistry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"captionkit/internal/config"
	"captionkit/internal/services"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Store records port reservations shared between processes.
type Store interface {
	// Reserve grants req.Port to the (Name, StoragePath) pair or returns a
	// *ConflictError naming the current holder.
	Reserve(ctx context.Context, req Request) (Result, error)
	// Release removes the reservation held by the pair on port and reports
	// whether one was removed.
	Release(ctx context.Context, name, storagePath string, port int) (bool, error)
	// List returns reservations in registration order.
	List(ctx context.Context) ([]Entry, error)
	// Tracking reports whether reservations are being recorded.
	Tracking() bool
	Close() error
}

// Open returns the Store configured by cfg.
func Open(cfg config.Registry, logger *slog.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "registry", "open", "registry path not configured", nil)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendJSON:
		return NewJSONStore(path, logger), nil
	case BackendSQLite:
		return OpenSQLite(path, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "registry", "open", fmt.Sprintf("unknown backend %q", cfg.Backend), nil)
	}
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Name) == "" {
		return services.Wrap(services.ErrValidation, "registry", "reserve", "name is required", nil)
	}
	if req.Port < 1 || req.Port > 65535 {
		return services.Wrap(services.ErrValidation, "registry", "reserve", fmt.Sprintf("port %d out of range", req.Port), nil)
	}
	return nil
}
