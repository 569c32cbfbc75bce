package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir string `toml:"log_dir"`
}

// Captioner contains configuration for the remote captioning service.
type Captioner struct {
	BaseURL           string `toml:"base_url"`
	Task              string `toml:"task"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	ReadyAttempts     int    `toml:"ready_attempts"`
	ReadyDelaySeconds int    `toml:"ready_delay_seconds"`
	// Concurrency bounds in-flight caption requests. 1 keeps the batch strictly sequential.
	Concurrency int `toml:"concurrency"`
}

// Caption contains defaults for caption normalization.
type Caption struct {
	Tagify      bool   `toml:"tagify"`
	Instruction string `toml:"instruction"`
}

// Validation contains thresholds for batch validation.
type Validation struct {
	MinTags            int     `toml:"min_tags"`
	MaxTags            int     `toml:"max_tags"`
	DuplicateThreshold float64 `toml:"duplicate_threshold"`
}

// Registry contains configuration for the port reservation registry.
type Registry struct {
	// Backend is "json" (shared JSON file) or "sqlite".
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Review contains configuration for review sessions.
type Review struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Name string `toml:"name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for captionkit.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Captioner  Captioner  `toml:"captioner"`
	Caption    Caption    `toml:"caption"`
	Validation Validation `toml:"validation"`
	Registry   Registry   `toml:"registry"`
	Review     Review     `toml:"review"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/captionkit/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("captionkit.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the log directory. The registry directory is left
// alone: an absent registry file means reservations are not tracked.
func (c *Config) EnsureDirectories() error {
	if dir := strings.TrimSpace(c.Paths.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CaptionerTimeout returns the per-request timeout for caption calls.
func (c *Config) CaptionerTimeout() time.Duration {
	return time.Duration(c.Captioner.TimeoutSeconds) * time.Second
}

// ReadyDelay returns the delay between readiness probe attempts.
func (c *Config) ReadyDelay() time.Duration {
	return time.Duration(c.Captioner.ReadyDelaySeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
