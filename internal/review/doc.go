// Package review serves a caption batch for human review over a small JSON
// API. A session loads captions.json, claims its port in the shared port
// registry, and releases the claim when it stops. Every caption edit is
// written back to captions.json and captions.csv immediately.
package review
