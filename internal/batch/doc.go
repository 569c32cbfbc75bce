// Package batch drives one captioning run over a directory of images.
//
// A run checks its inputs before touching the network, waits for the
// captioning service to report ready, captions every image in processing
// order, normalizes and validates the captions, and writes the artifacts.
// Any failed caption request aborts the run and nothing is written.
package batch
