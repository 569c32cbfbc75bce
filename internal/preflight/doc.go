// Package preflight provides readiness checks for the captioning service,
// the port registry, and the filesystem paths captionkit writes to.
//
// The CLI "captionkit status" command runs RunAll and renders the results.
// Checks never return errors; a failure is a Result with Passed unset and a
// human-readable Detail.
package preflight
