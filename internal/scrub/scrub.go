// Package scrub applies light, regex-based anonymization of personal names
// in ruling text. The heuristics are deliberately narrow: they target the
// naming patterns that dominate disciplinary rulings and accept that some
// names survive. Replacement uses the NAAM placeholder.
package scrub

import "regexp"

// Placeholder substitutes a redacted name.
const Placeholder = "NAAM"

const (
	initials  = `(?:[A-Z]\.\s*)*`
	particles = `(?:(?i:van|de|der|den|ter)\s+)*`
	surname   = `[A-Z][A-Za-z]+`
	fullName  = initials + particles + surname
)

var (
	titleRe       = regexp.MustCompile(`\b(mr|dr|prof|ir|ing)\.\s+` + fullName)
	partyRe       = regexp.MustCompile(`\b([Kk]lager|[Vv]erweerder|[Bb]eklaagde|[Aa]ppellant)\s+` + fullName)
	courtesyRe    = regexp.MustCompile(`\b([Dd]e heer|[Mm]evrouw|[Dd]hr\.|[Mm]evr\.)\s+` + fullName)
	gemachtigdeRe = regexp.MustCompile(`\b([Gg]emachtigde)\s+(?:(?:mr|dr)\.\s+)?` + fullName)
)

// TitleNames redacts names following professional titles like "mr." and
// "dr.".
func TitleNames(text string) string {
	return titleRe.ReplaceAllString(text, "$1. "+Placeholder)
}

// PartyNames redacts names following party designations such as "klager"
// and "verweerder".
func PartyNames(text string) string {
	return partyRe.ReplaceAllString(text, "$1 "+Placeholder)
}

// CourtesyNames redacts names following courtesy forms such as "De heer"
// and "Mevrouw".
func CourtesyNames(text string) string {
	return courtesyRe.ReplaceAllString(text, "$1 "+Placeholder)
}

// GemachtigdeNames redacts the names of authorized representatives.
func GemachtigdeNames(text string) string {
	return gemachtigdeRe.ReplaceAllString(text, "$1 "+Placeholder)
}

// Scrubber applies every pass in sequence. It implements harvest.Scrubber.
type Scrubber struct{}

// New returns the default scrubber.
func New() *Scrubber { return &Scrubber{} }

// Scrub anonymizes text with all redaction passes.
func (s *Scrubber) Scrub(text string) string {
	text = TitleNames(text)
	text = PartyNames(text)
	text = CourtesyNames(text)
	text = GemachtigdeNames(text)
	return text
}
