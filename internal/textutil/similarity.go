package textutil

import "strings"

// TagSet splits a caption on commas into a set of tokens. Tokens are kept
// exactly as written: no trimming and no case folding.
func TagSet(caption string) map[string]struct{} {
	parts := strings.Split(caption, ",")
	set := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		set[part] = struct{}{}
	}
	return set
}

// Jaccard computes |A ∩ B| / |A ∪ B|. Returns 0 when the union is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	var shared int
	for token := range small {
		if _, ok := large[token]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
