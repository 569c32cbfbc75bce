// Package logging assembles structured slog loggers used across captionkit.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code automatically
// tags log lines with the run ID, stage, and image. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
