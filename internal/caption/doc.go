// Package caption rewrites raw captions from the captioning service into
// final training captions anchored to a concept label.
//
// Normalize applies four steps in a fixed order, each on the output of the
// previous one: tagify (optional), subject normalization, instruction-directed
// background filtering (optional), and concept anchoring. Subject
// normalization is an ordered rule table; verb bigram rules must run before
// the bare pronoun rule or the bigram would no longer see its pronoun.
//
// Everything here is a pure function of its inputs.
package caption
