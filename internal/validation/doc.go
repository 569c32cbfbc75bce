// Package validation flags structural and duplication defects in a batch of
// normalized captions. Flags are data, never errors: an empty result means
// the batch is clean.
package validation
