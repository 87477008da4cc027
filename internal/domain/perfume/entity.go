// Package perfume holds the catalog record model and the pure, total
// functions that give records a stable identity: text normalization, note
// cleaning, strict/loose fingerprints, deduplication and note extraction.
// Nothing in this package performs I/O or returns an error.
package perfume

import (
	"strconv"
	"strings"
)

// Canonical gender values accepted by the store.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
	GenderUnisex = "Unisex"
)

// UnknownValue is the sentinel the source uses for missing text fields.
const UnknownValue = "Unknown"

// RawRecord is one row of the source catalog.  It is populated by a source
// reader and treated as immutable once the pipeline starts.
type RawRecord struct {
	// Position is the 0-based row index in the source; it anchors the
	// first-seen tie-break of the deduplicator.
	Position int `json:"position"`

	Brand         string `json:"brand"`
	Name          string `json:"name"`
	Concentration string `json:"concentration"`
	Manufacturer  string `json:"manufacturer"`

	// ReleaseYear is 0 when absent or unparseable.
	ReleaseYear int    `json:"release_year"`
	Gender      string `json:"gender"`

	RatingCount int     `json:"rating_count"`
	RatingValue float64 `json:"rating_value"`

	// Comma-delimited free-text lists as they appear in the source.
	TopNotes    string `json:"top_notes"`
	MiddleNotes string `json:"middle_notes"`
	BaseNotes   string `json:"base_notes"`
	MainAccords string `json:"main_accords"`
	Perfumers   string `json:"perfumers"`

	URL      string `json:"url"`
	ImageURL string `json:"image_url"`

	IsUncertain bool `json:"is_uncertain"`
	IsLinear    bool `json:"is_linear"`
}

// SubScores are the four normalized components of the composite score.
// NoteRarity is nil when the population carries no notes at all.
type SubScores struct {
	Obscurity    float64  `json:"obscurity"`
	GenderRarity float64  `json:"gender_rarity"`
	NoteCount    float64  `json:"note_count"`
	NoteRarity   *float64 `json:"note_rarity"`
}

// Perfume is a surviving record augmented with everything the pipeline
// derives from it.  Scores and Score are nil for ineligible records.
type Perfume struct {
	RawRecord

	FingerprintStrict string `json:"fingerprint_strict"`
	FingerprintLoose  string `json:"fingerprint_loose"`

	CleanTopNotes    []string `json:"clean_top_notes"`
	CleanMiddleNotes []string `json:"clean_middle_notes"`
	CleanBaseNotes   []string `json:"clean_base_notes"`
	CleanPerfumers   []string `json:"clean_perfumers"`

	// Notes is the pyramid concatenation or, when empty, the accord fallback.
	Notes     []string `json:"notes"`
	NoteCount int      `json:"note_count"`

	Eligible bool       `json:"eligible"`
	Scores   *SubScores `json:"scores"`
	Score    *float64   `json:"score"`

	IsActive     bool `json:"is_active"`
	ModelVersion int  `json:"model_version"`
}

// CanonicalGender returns the store value for g, or "" when g is not one of
// Male/Female/Unisex (exact match, as the source writes them).
func CanonicalGender(g string) string {
	switch g {
	case GenderMale, GenderFemale, GenderUnisex:
		return g
	}
	return ""
}

// IsActive reports technical validity: name and brand present, not the
// "unknown" sentinel and not blank, and a non-blank source URL.  It is
// independent of eligibility.
func IsActive(r RawRecord) bool {
	return presentText(r.Name) && presentText(r.Brand) && strings.TrimSpace(r.URL) != ""
}

func presentText(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.EqualFold(s, "unknown")
}

// SourceSlug is the human-readable record key written alongside each upsert:
// normalized brand, name, concentration and year joined by hyphens and
// capped at 250 runes.
func SourceSlug(r RawRecord) string {
	s := Normalize(r.Brand) + "-" + Normalize(r.Name) + "-" + Normalize(r.Concentration) + "-" + strconv.Itoa(r.ReleaseYear)
	if rs := []rune(s); len(rs) > 250 {
		return string(rs[:250])
	}
	return s
}
