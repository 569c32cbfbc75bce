package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCaptioner()
	c.normalizeCaption()
	c.normalizeValidation()
	if err := c.normalizeRegistry(); err != nil {
		return err
	}
	c.normalizeReview()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCaptioner() {
	if value, ok := os.LookupEnv(envCaptionerURL); ok && strings.TrimSpace(value) != "" {
		c.Captioner.BaseURL = value
	}
	c.Captioner.BaseURL = strings.TrimRight(strings.TrimSpace(c.Captioner.BaseURL), "/")
	if c.Captioner.BaseURL == "" {
		c.Captioner.BaseURL = defaultCaptionerBaseURL
	}
	c.Captioner.Task = strings.TrimSpace(c.Captioner.Task)
	if c.Captioner.Task == "" {
		c.Captioner.Task = defaultCaptionerTask
	}
	if c.Captioner.TimeoutSeconds <= 0 {
		c.Captioner.TimeoutSeconds = defaultCaptionerTimeout
	}
	if c.Captioner.ReadyAttempts <= 0 {
		c.Captioner.ReadyAttempts = defaultReadyAttempts
	}
	if c.Captioner.ReadyDelaySeconds < 0 {
		c.Captioner.ReadyDelaySeconds = defaultReadyDelaySeconds
	}
	if c.Captioner.Concurrency <= 0 {
		c.Captioner.Concurrency = defaultConcurrency
	}
}

func (c *Config) normalizeCaption() {
	c.Caption.Instruction = strings.TrimSpace(c.Caption.Instruction)
}

func (c *Config) normalizeValidation() {
	if c.Validation.MinTags <= 0 {
		c.Validation.MinTags = defaultMinTags
	}
	if c.Validation.MaxTags <= 0 {
		c.Validation.MaxTags = defaultMaxTags
	}
	if c.Validation.DuplicateThreshold == 0 {
		c.Validation.DuplicateThreshold = defaultDuplicateThreshold
	}
}

func (c *Config) normalizeRegistry() error {
	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	if c.Registry.Backend == "" {
		c.Registry.Backend = defaultRegistryBackend
	}
	if value, ok := os.LookupEnv(envRegistryPath); ok && strings.TrimSpace(value) != "" {
		c.Registry.Path = value
	}
	c.Registry.Path = strings.TrimSpace(c.Registry.Path)
	if c.Registry.Path == "" {
		switch c.Registry.Backend {
		case registryBackendSQLite:
			c.Registry.Path = defaultRegistrySQLitePath
		default:
			c.Registry.Path = defaultRegistryJSONPath
		}
	}
	var err error
	if c.Registry.Path, err = expandPath(c.Registry.Path); err != nil {
		return fmt.Errorf("registry.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeReview() {
	c.Review.Host = strings.TrimSpace(c.Review.Host)
	if c.Review.Host == "" {
		c.Review.Host = defaultReviewHost
	}
	if c.Review.Port == 0 {
		c.Review.Port = defaultReviewPort
	}
	c.Review.Name = strings.TrimSpace(c.Review.Name)
	if c.Review.Name == "" {
		c.Review.Name = defaultReviewName
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
