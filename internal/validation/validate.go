package validation

import (
	"fmt"

	"captionkit/internal/dataset"
	"captionkit/internal/textutil"
)

// Default thresholds.
const (
	DefaultMinTags            = 4
	DefaultMaxTags            = 40
	DefaultDuplicateThreshold = 0.85
)

// Issue is a flag attached to one image.
type Issue = dataset.Issue

// Options holds the validation thresholds. Zero values select the defaults.
type Options struct {
	MinTags            int
	MaxTags            int
	DuplicateThreshold float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinTags:            DefaultMinTags,
		MaxTags:            DefaultMaxTags,
		DuplicateThreshold: DefaultDuplicateThreshold,
	}
}

func (o Options) withDefaults() Options {
	if o.MinTags <= 0 {
		o.MinTags = DefaultMinTags
	}
	if o.MaxTags <= 0 {
		o.MaxTags = DefaultMaxTags
	}
	if o.DuplicateThreshold <= 0 {
		o.DuplicateThreshold = DefaultDuplicateThreshold
	}
	return o
}

// Validate returns every tag-count issue in record order followed by every
// near-duplicate issue in pair order (i, j) with i < j. A duplicate pair is
// reported once, on the earlier record.
func Validate(records []dataset.Record, opts Options) []Issue {
	opts = opts.withDefaults()

	var issues []Issue
	for _, record := range records {
		count := textutil.CountTags(record.FinalCaption)
		if count < opts.MinTags || count > opts.MaxTags {
			issues = append(issues, Issue{
				Image: record.Image,
				Issue: fmt.Sprintf("tag count %d outside [%d, %d]", count, opts.MinTags, opts.MaxTags),
			})
		}
	}

	sets := make([]map[string]struct{}, len(records))
	for i, record := range records {
		sets[i] = textutil.TagSet(record.FinalCaption)
	}
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			similarity := textutil.Jaccard(sets[i], sets[j])
			if similarity > opts.DuplicateThreshold {
				issues = append(issues, Issue{
					Image: records[i].Image,
					Issue: fmt.Sprintf("near-duplicate of %s (similarity %.2f)", records[j].Image, similarity),
				})
			}
		}
	}
	return issues
}
