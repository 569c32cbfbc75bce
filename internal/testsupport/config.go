package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"captionkit/internal/config"
	"captionkit/internal/portregistry"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The readiness probe is a single attempt with no delay.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Captioner.BaseURL = "http://127.0.0.1:1"
	cfgVal.Captioner.ReadyAttempts = 1
	cfgVal.Captioner.ReadyDelaySeconds = 0
	cfgVal.Captioner.TimeoutSeconds = 5
	cfgVal.Registry.Backend = portregistry.BackendJSON
	cfgVal.Registry.Path = filepath.Join(base, "registry", "registry.json")
	cfgVal.Review.Host = "127.0.0.1"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCaptionerURL points the captioner at a test server.
func WithCaptionerURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Captioner.BaseURL = url
	}
}

// WithConcurrency sets the caption worker count.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Captioner.Concurrency = n
	}
}

// WithReadyAttempts sets the readiness probe attempt count.
func WithReadyAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Captioner.ReadyAttempts = n
	}
}

// WithSQLiteRegistry switches the registry to the SQLite backend.
func WithSQLiteRegistry() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Registry.Backend = portregistry.BackendSQLite
		b.cfg.Registry.Path = filepath.Join(b.baseDir, "registry", "registry.db")
	}
}

// WithTrackedRegistry creates an empty JSON registry so reservations are
// recorded.
func WithTrackedRegistry() ConfigOption {
	return func(b *configBuilder) {
		if _, err := portregistry.InitFile(context.Background(), b.cfg.Registry.Path); err != nil {
			b.t.Fatalf("init registry: %v", err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
