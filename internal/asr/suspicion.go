package asr

import (
	"strings"

	"clinicvoice/internal/lexicon"
)

// Reasons a transcript is handed to the secondary engine.
const (
	ReasonShortAudio   = "short_audio"
	ReasonTooShort     = "too_short"
	ReasonDenylisted   = "denylisted"
	ReasonNoKeyword    = "no_keyword"
	ReasonPrimaryError = "primary_error"
)

// Suspicion judges whether a primary transcript is trustworthy.
type Suspicion struct {
	MinChars  int
	Denylist  []string
	Allowlist []string
}

// Check returns the reason text is suspicious, or "" when it looks fine.
// Denylisted entries match on word boundaries; allowlist entries match as
// substrings so inflected forms still count.
func (s Suspicion) Check(text string) string {
	norm := lexicon.Normalize(text)
	if len([]rune(norm)) < s.MinChars || norm == "" {
		return ReasonTooShort
	}
	if lexicon.ContainsAny(norm, s.Denylist) {
		return ReasonDenylisted
	}
	if len(s.Allowlist) == 0 {
		return ""
	}
	for _, kw := range s.Allowlist {
		k := lexicon.Normalize(kw)
		if k != "" && strings.Contains(norm, k) {
			return ""
		}
	}
	return ReasonNoKeyword
}
