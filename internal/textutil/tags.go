package textutil

import (
	"regexp"
	"strconv"
	"strings"
)

// TagSeparator joins normalized caption fragments.
const TagSeparator = ", "

var embeddedNumberPattern = regexp.MustCompile(`\d+`)

// SplitTags splits a caption on commas without trimming the pieces.
func SplitTags(caption string) []string {
	return strings.Split(caption, ",")
}

// CountTags returns the number of comma-separated tokens in caption.
func CountTags(caption string) int {
	return strings.Count(caption, ",") + 1
}

// JoinTags joins fragments with the canonical separator.
func JoinTags(fragments []string) string {
	return strings.Join(fragments, TagSeparator)
}

// EmbeddedNumber returns the first run of digits in name, if any.
func EmbeddedNumber(name string) (int, bool) {
	match := embeddedNumberPattern.FindString(name)
	if match == "" {
		return 0, false
	}
	value, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return value, true
}
