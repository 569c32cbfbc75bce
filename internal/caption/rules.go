package caption

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// Rule is one pattern → replacement step of subject normalization.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	// Replace builds the substitution from the submatches of one match.
	Replace func(groups []string) string
}

// Apply runs the rule over text.
func (r Rule) Apply(text string) string {
	return r.Pattern.ReplaceAllStringFunc(text, func(match string) string {
		return r.Replace(r.Pattern.FindStringSubmatch(match))
	})
}

// ApplyRules runs rules in order, each on the output of the previous one.
func ApplyRules(text string, rules []Rule) string {
	for _, rule := range rules {
		text = rule.Apply(text)
	}
	return text
}

// SubjectRules returns the ordered subject normalization table for concept.
// "her" is claimed by the possessive rule before the bare pronoun rule runs.
func SubjectRules(concept string) []Rule {
	possessive := concept + "'s"
	literal := func(value string) func([]string) string {
		return func([]string) string { return value }
	}
	return []Rule{
		{
			Name:    "person-noun-possessive",
			Pattern: regexp.MustCompile(`(?i)\b(man|woman|boy|girl)['’]s\b`),
			Replace: literal(possessive),
		},
		{
			Name:    "person-noun",
			Pattern: regexp.MustCompile(`(?i)\b(man|woman|boy|girl)\b`),
			Replace: literal(concept),
		},
		{
			Name:    "article-before-concept",
			Pattern: regexp.MustCompile(`(?i)\b(a|an)\s+` + wordPattern(concept)),
			Replace: literal(concept),
		},
		{
			Name:    "pronoun-verb",
			Pattern: regexp.MustCompile(`(?i)\b(he|she|they)\s+(is|was|has|have|wearing)\b`),
			Replace: func(groups []string) string {
				return concept + " " + groups[2]
			},
		},
		{
			Name:    "possessive-pronoun",
			Pattern: regexp.MustCompile(`(?i)\b(his|her|their)\b`),
			Replace: literal(possessive),
		},
		{
			Name:    "pronoun",
			Pattern: regexp.MustCompile(`(?i)\b(him|her|them|he|she|they)\b`),
			Replace: literal(concept),
		},
	}
}

// wordPattern quotes value and adds word boundaries only where value begins
// or ends with a word character, so labels like "c3po!" still match.
func wordPattern(value string) string {
	pattern := regexp.QuoteMeta(value)
	if first, _ := utf8.DecodeRuneInString(value); isWordRune(first) {
		pattern = `\b` + pattern
	}
	if last, _ := utf8.DecodeLastRuneInString(value); isWordRune(last) {
		pattern += `\b`
	}
	return pattern
}

func isWordRune(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
