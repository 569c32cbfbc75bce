package caption

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Options controls the optional normalization steps.
type Options struct {
	// Tagify converts prose into a comma-separated tag list.
	Tagify bool
	// Instruction is free text from the operator; only the background
	// suppression intent is acted on.
	Instruction string
}

// Normalize rewrites raw into a final caption for concept.
func Normalize(raw, concept string, opts Options) string {
	concept = strings.TrimSpace(concept)

	var text string
	if opts.Tagify {
		text = Tagify(raw)
	} else {
		text = strings.TrimSpace(raw)
	}

	if concept != "" {
		text = ApplyRules(text, SubjectRules(concept))
	}

	if instruction := strings.TrimSpace(opts.Instruction); instruction != "" && WantsBackgroundSuppression(instruction) {
		text = FilterBackground(text)
	}

	return AnchorConcept(text, concept)
}

// AnchorConcept prefixes caption with "<concept>, " unless it already starts
// with the concept (case-insensitive). An empty caption becomes the concept.
func AnchorConcept(caption, concept string) string {
	if concept == "" {
		return caption
	}
	if strings.TrimSpace(caption) == "" {
		return concept
	}
	if strings.HasPrefix(lower(caption), lower(concept)) {
		return caption
	}
	return concept + ", " + caption
}

// lower folds s to lower case using Unicode-aware rules. Casers are not safe
// for concurrent use, so one is built per call.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
