// Package captioner talks to the image captioning service: a small HTTP API
// exposing GET /health and a multipart POST /caption endpoint.
//
// The service places the caption in one of several response shapes depending
// on the task token and model. ParseResponse resolves the shape once into a
// tagged Response so callers never probe the payload themselves.
package captioner
