// Package main hosts the captionkit CLI entrypoint and command graph.
//
// The Cobra command tree exposes batch captioning, re-validation of edited
// batches, the review session, port registry maintenance, preflight status,
// and configuration scaffolding. Configuration and logger construction are
// resolved lazily in commandContext so commands that only write a sample
// config never touch the filesystem beyond their target.
//
// Keep this package thin: behaviour lives in the internal packages and the
// commands here translate flags into their requests and render the results.
package main
