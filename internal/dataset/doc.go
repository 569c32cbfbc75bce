// Package dataset reads and writes caption batch artifacts: captions.json,
// captions.csv, and caption_issues.csv. It also discovers the images of a
// batch in their canonical processing order.
//
// All writes go through fileutil.WriteFileAtomic so a crashed run never
// leaves a half-written file behind for the review session to load.
package dataset
