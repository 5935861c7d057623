package stt

import "strings"

// Filter decides whether decoded text is a usable transcript. Rejection is
// a silent no-op downstream, not an error.
type Filter struct {
	minChars       int
	hallucinations []string
}

func NewFilter(minChars int, hallucinations []string) *Filter {
	lowered := make([]string, len(hallucinations))
	for i, phrase := range hallucinations {
		lowered[i] = strings.ToLower(phrase)
	}
	return &Filter{minChars: minChars, hallucinations: lowered}
}

// Accept returns false with a reason when the text is empty, too short, or
// contains a known hallucination phrase (case-insensitive substring).
func (f *Filter) Accept(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len([]rune(trimmed)) < f.minChars {
		return false, "too-short"
	}
	lowered := strings.ToLower(trimmed)
	for _, phrase := range f.hallucinations {
		if phrase != "" && strings.Contains(lowered, phrase) {
			return false, "hallucination"
		}
	}
	return true, ""
}
