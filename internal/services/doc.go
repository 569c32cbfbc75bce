// Package services defines shared utilities consumed by the captioning
// pipeline, the review session, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and image paths for
//     logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (missing input, unavailable service, upstream call failure, registry
//     conflict) so callers can decide what aborts a run.
//
// Use these helpers when wiring new pipeline steps so error handling and
// observability stay uniform.
package services
