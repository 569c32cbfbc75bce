package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCaptioner(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateReview(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCaptioner() error {
	parsed, err := url.Parse(c.Captioner.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("captioner.base_url must be an absolute http(s) URL, got %q", c.Captioner.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("captioner.base_url scheme must be http or https, got %q", parsed.Scheme)
	}
	if c.Captioner.ReadyAttempts > maxReadyAttempts {
		return fmt.Errorf("captioner.ready_attempts must be <= %d", maxReadyAttempts)
	}
	if c.Captioner.Concurrency > maxCaptionerConcurrency {
		return fmt.Errorf("captioner.concurrency must be <= %d", maxCaptionerConcurrency)
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.MinTags > c.Validation.MaxTags {
		return errors.New("validation.min_tags must not exceed validation.max_tags")
	}
	if c.Validation.DuplicateThreshold <= 0 || c.Validation.DuplicateThreshold > 1 {
		return errors.New("validation.duplicate_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if !slices.Contains(RegistryBackends(), c.Registry.Backend) {
		return fmt.Errorf("registry.backend must be one of %s, got %q", strings.Join(RegistryBackends(), ", "), c.Registry.Backend)
	}
	return nil
}

func (c *Config) validateReview() error {
	if c.Review.Port < 1 || c.Review.Port > 65535 {
		return fmt.Errorf("review.port must be between 1 and 65535, got %d", c.Review.Port)
	}
	return nil
}
