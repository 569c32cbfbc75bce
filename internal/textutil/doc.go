// Package textutil provides the text helpers shared by caption normalization,
// validation, and dataset discovery.
//
// The primary use cases are:
//   - Splitting captions into comma-separated tag tokens
//   - Computing Jaccard similarity between caption tag sets
//   - Extracting embedded numbers from file names for natural ordering
//
// Tag tokens are compared exactly as written; callers decide whether to trim
// or fold case before comparing.
package textutil
