package caption

import (
	"regexp"
	"strings"

	"captionkit/internal/textutil"
)

var (
	lineBreakReplacer   = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	sentenceEndReplacer = strings.NewReplacer(".", ",", ";", ",")
	fragmentSplit       = regexp.MustCompile(`,|\band\b`)
	leadingArticle      = regexp.MustCompile(`^(a|an|the)\s+`)
)

// Tagify converts a prose caption into a deduplicated comma-separated tag
// list. Fragment order follows first occurrence in the source text.
func Tagify(raw string) string {
	text := lineBreakReplacer.Replace(raw)
	text = sentenceEndReplacer.Replace(text)

	fragments := fragmentSplit.Split(text, -1)
	seen := make(map[string]struct{}, len(fragments))
	tags := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		fragment = lower(strings.TrimSpace(fragment))
		fragment = strings.TrimSpace(leadingArticle.ReplaceAllString(fragment, ""))
		if fragment == "" {
			continue
		}
		if _, dup := seen[fragment]; dup {
			continue
		}
		seen[fragment] = struct{}{}
		tags = append(tags, fragment)
	}
	return textutil.JoinTags(tags)
}
