// Package config loads, normalizes, and validates captionkit configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CAPTIONKIT_CAPTIONER_URL. The Config type centralizes the captioning
// service endpoint, validation thresholds, registry backend, and review
// session defaults so every command discovers them in one pass.
package config
