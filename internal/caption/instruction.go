package caption

import (
	"regexp"
	"strings"

	"captionkit/internal/textutil"
)

var (
	backgroundIntent = regexp.MustCompile(
		`\b(ignore|no|less|reduce|without|remove|minimi[sz]e)\s+(the\s+)?background\b` +
			`|\bfocus\s+(only\s+)?on\s+(the\s+)?(subject|person|character)\b`)
	backgroundKeyword = regexp.MustCompile(
		`(?i)\b(backgrounds?|walls?|doors?|windows?|rooms?|houses?|buildings?|trees?|sky|skies)\b`)
)

// WantsBackgroundSuppression reports whether instruction asks to de-emphasize
// the background.
func WantsBackgroundSuppression(instruction string) bool {
	return backgroundIntent.MatchString(lower(instruction))
}

// FilterBackground drops comma-separated fragments that mention a background
// keyword. If nothing would survive, caption is returned unchanged.
func FilterBackground(caption string) string {
	var kept []string
	for _, fragment := range textutil.SplitTags(caption) {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" || backgroundKeyword.MatchString(fragment) {
			continue
		}
		kept = append(kept, fragment)
	}
	if len(kept) == 0 {
		return caption
	}
	return textutil.JoinTags(kept)
}
