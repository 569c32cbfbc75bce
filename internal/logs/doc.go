// Package logs reads the captionkit log file for `captionkit logs`.
//
// Tail returns the last N lines (negative offset) or everything after a byte
// offset, optionally restricted to a single batch run by its run_id field.
// Follow-mode callers loop on the returned offset; polling honours the
// context so the CLI exits cleanly on interrupt.
package logs
