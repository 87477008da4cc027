// Package scoring computes the population-relative rarity score of catalog
// records.  Scoring is two-phase: BuildStats takes one immutable snapshot of
// the whole population, then each eligible record is scored against it.
package scoring

import (
	"fmt"
	"sort"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
)

// Subject is the per-record input to scoring.
type Subject struct {
	RatingCount int
	Gender      string
	// Notes is the cleaned, merged note list.
	Notes []string
}

// WarningKind classifies a dataset-level condition surfaced while building
// statistics.
type WarningKind string

const (
	// WarningEligibilityFallback: too few records cleared the main
	// threshold and the fallback threshold was applied to everyone.
	WarningEligibilityFallback WarningKind = "eligibility_fallback"
	// WarningNoNotes: the population carries no notes; the note rarity term
	// is disabled for every record.
	WarningNoNotes WarningKind = "no_note_occurrences"
)

// Warning is a non-fatal dataset-level condition.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// PopulationStats is the read-only snapshot every record is scored against.
// Rating statistics cover the eligible subset only; note statistics cover
// the whole population.
type PopulationStats struct {
	size              int
	threshold         int
	fallbackApplied   bool
	eligibleCount     int
	p99Rating         float64
	genderRatings     map[string][]int
	maxNoteCount      int
	totalOccurrences  int
	noteFrequency     map[string]float64
	p95AverageRarity  float64
	noteRarityEnabled bool
}

// genderKeys are the normalized buckets of the gender-relative rarity.
var genderKeys = []string{
	perfume.Normalize(perfume.GenderMale),
	perfume.Normalize(perfume.GenderFemale),
	perfume.Normalize(perfume.GenderUnisex),
}

// BuildStats computes the snapshot over subjects.  It never fails; the
// returned warnings describe the fallback and no-notes conditions.
func BuildStats(subjects []Subject, cfg Config) (*PopulationStats, []Warning) {
	var warnings []Warning
	st := &PopulationStats{
		size:          len(subjects),
		threshold:     cfg.Threshold,
		genderRatings: make(map[string][]int, len(genderKeys)),
		noteFrequency: make(map[string]float64),
	}

	// Eligibility is decided once for the whole dataset.
	primary := countAtLeast(subjects, cfg.Threshold)
	if primary < cfg.MinEligible {
		st.threshold = cfg.FallbackThreshold
		st.fallbackApplied = true
		warnings = append(warnings, Warning{
			Kind: WarningEligibilityFallback,
			Message: fmt.Sprintf("only %d records reach %d ratings (minimum %d); lowering threshold to %d",
				primary, cfg.Threshold, cfg.MinEligible, cfg.FallbackThreshold),
		})
	}

	ratings := make([]float64, 0, len(subjects))
	for _, s := range subjects {
		if !st.IsEligible(s.RatingCount) {
			continue
		}
		ratings = append(ratings, float64(s.RatingCount))
		g := perfume.Normalize(s.Gender)
		if isGenderKey(g) {
			st.genderRatings[g] = append(st.genderRatings[g], s.RatingCount)
		}
	}
	st.eligibleCount = len(ratings)
	st.p99Rating = 1
	if len(ratings) > 0 {
		if p := Percentile(ratings, 99); p > 1 {
			st.p99Rating = p
		}
	}
	for _, bucket := range st.genderRatings {
		sort.Ints(bucket)
	}

	counts := make(map[string]int)
	for _, s := range subjects {
		if len(s.Notes) > st.maxNoteCount {
			st.maxNoteCount = len(s.Notes)
		}
		for _, n := range s.Notes {
			counts[n]++
			st.totalOccurrences++
		}
	}
	if st.maxNoteCount < 1 {
		st.maxNoteCount = 1
	}

	if st.totalOccurrences == 0 {
		warnings = append(warnings, Warning{
			Kind:    WarningNoNotes,
			Message: "no note occurrences in the population; note rarity disabled",
		})
		return st, warnings
	}

	st.noteRarityEnabled = true
	total := float64(st.totalOccurrences)
	for n, c := range counts {
		st.noteFrequency[n] = float64(c) / total
	}
	averages := make([]float64, len(subjects))
	for i, s := range subjects {
		averages[i] = st.AverageRarity(s.Notes)
	}
	st.p95AverageRarity = Percentile(averages, 95)
	return st, warnings
}

func countAtLeast(subjects []Subject, threshold int) int {
	n := 0
	for _, s := range subjects {
		if s.RatingCount >= threshold {
			n++
		}
	}
	return n
}

func isGenderKey(g string) bool {
	for _, k := range genderKeys {
		if g == k {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Accessors
// ─────────────────────────────────────────────────────────────────────────────

// Size is the number of records in the population.
func (s *PopulationStats) Size() int { return s.size }

// Threshold is the effective eligibility threshold after any fallback.
func (s *PopulationStats) Threshold() int { return s.threshold }

// FallbackApplied reports whether the fallback threshold is in effect.
func (s *PopulationStats) FallbackApplied() bool { return s.fallbackApplied }

// EligibleCount is the size of the eligible subset.
func (s *PopulationStats) EligibleCount() int { return s.eligibleCount }

// P99Rating is the floored 99th percentile of eligible rating counts.
func (s *PopulationStats) P99Rating() float64 { return s.p99Rating }

// MaxNoteCount is the longest note list in the population, floored at 1.
func (s *PopulationStats) MaxNoteCount() int { return s.maxNoteCount }

// TotalNoteOccurrences counts notes across the population.
func (s *PopulationStats) TotalNoteOccurrences() int { return s.totalOccurrences }

// NoteRarityEnabled is false when the population carries no notes.
func (s *PopulationStats) NoteRarityEnabled() bool { return s.noteRarityEnabled }

// P95AverageRarity is the 95th percentile of per-record average rarity.
func (s *PopulationStats) P95AverageRarity() float64 { return s.p95AverageRarity }

// IsEligible applies the effective threshold.
func (s *PopulationStats) IsEligible(ratingCount int) bool { return ratingCount >= s.threshold }

// GenderBucketSize returns the number of eligible records of gender g.
func (s *PopulationStats) GenderBucketSize(g string) int {
	return len(s.genderRatings[perfume.Normalize(g)])
}

// NoteFrequency returns occurrences(note) / total occurrences.
func (s *PopulationStats) NoteFrequency(note string) float64 { return s.noteFrequency[note] }

// AverageRarity averages 1 - frequency over notes; 0 for an empty list.
func (s *PopulationStats) AverageRarity(notes []string) float64 {
	if len(notes) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range notes {
		sum += 1 - s.noteFrequency[n]
	}
	return sum / float64(len(notes))
}
