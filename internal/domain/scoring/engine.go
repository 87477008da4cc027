package scoring

import (
	"math"
	"sort"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
)

// Scoring policy constants.
const (
	DefaultThreshold         = 400
	DefaultFallbackThreshold = 10
	DefaultMinEligible       = 50

	// GenderDefault is the gender rarity assigned when the record's gender
	// is unrecognized or its bucket is empty.
	GenderDefault = 0.5

	WeightObscurity  = 0.40
	WeightGender     = 0.30
	WeightNoteCount  = 0.15
	WeightNoteRarity = 0.15
)

// Weights of the composite score.
type Weights struct {
	Obscurity  float64
	Gender     float64
	NoteCount  float64
	NoteRarity float64
}

// Config is the scoring policy.
type Config struct {
	Threshold         int
	FallbackThreshold int
	MinEligible       int
	GenderDefault     float64
	Weights           Weights
}

// DefaultConfig returns the canonical policy.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		FallbackThreshold: DefaultFallbackThreshold,
		MinEligible:       DefaultMinEligible,
		GenderDefault:     GenderDefault,
		Weights: Weights{
			Obscurity:  WeightObscurity,
			Gender:     WeightGender,
			NoteCount:  WeightNoteCount,
			NoteRarity: WeightNoteRarity,
		},
	}
}

// Result is the score of one subject.  Scores and Score are nil unless
// Eligible.
type Result struct {
	Eligible bool
	Scores   *perfume.SubScores
	Score    *float64
}

// Run is the outcome of ScoreAll.
type Run struct {
	Stats    *PopulationStats
	Results  []Result
	Warnings []Warning
}

// MeanScore averages the non-null composite scores; 0 when none.
func (r Run) MeanScore() float64 {
	sum, n := 0.0, 0
	for _, res := range r.Results {
		if res.Score != nil {
			sum += *res.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Engine scores subjects against a PopulationStats snapshot.
type Engine struct {
	cfg    Config
	logger logging.Logger
}

// NewEngine creates an Engine.  A nil logger discards output.
func NewEngine(cfg Config, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{cfg: cfg, logger: logger.Named("scoring")}
}

// Config returns the policy the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// ScoreAll builds the snapshot over the complete population and then scores
// each subject.  Results are parallel to subjects.
func (e *Engine) ScoreAll(subjects []Subject) Run {
	stats, warnings := BuildStats(subjects, e.cfg)
	for _, w := range warnings {
		e.logger.Warn(string(w.Kind),
			logging.String("detail", w.Message),
			logging.Int("threshold", stats.Threshold()),
			logging.Int("population", stats.Size()))
	}

	run := Run{Stats: stats, Results: make([]Result, len(subjects)), Warnings: warnings}
	for i, s := range subjects {
		run.Results[i] = e.Score(stats, s)
	}

	e.logger.Info("scores computed",
		logging.Int("eligible", stats.EligibleCount()),
		logging.Int("ineligible", stats.Size()-stats.EligibleCount()),
		logging.Int("threshold", stats.Threshold()),
		logging.Float64("mean_score", run.MeanScore()))
	return run
}

// Score computes one subject's sub-scores and composite.  Ineligible
// subjects get an explicit null result.
func (e *Engine) Score(stats *PopulationStats, s Subject) Result {
	if !stats.IsEligible(s.RatingCount) {
		return Result{}
	}

	sub := &perfume.SubScores{
		Obscurity:    Obscurity(stats, s.RatingCount),
		GenderRarity: e.genderRarity(stats, s),
		NoteCount:    NoteCountFactor(stats, len(s.Notes)),
	}
	w := e.cfg.Weights
	total := sub.Obscurity*w.Obscurity + sub.GenderRarity*w.Gender + sub.NoteCount*w.NoteCount
	if stats.NoteRarityEnabled() {
		nr := NoteRarity(stats, s.Notes)
		sub.NoteRarity = &nr
		total += nr * w.NoteRarity
	}
	score := clamp01(total)
	return Result{Eligible: true, Scores: sub, Score: &score}
}

// Obscurity is 1 - ln(1+min(r, p99)) / ln(1+p99).
func Obscurity(stats *PopulationStats, ratingCount int) float64 {
	p99 := stats.P99Rating()
	r := math.Min(math.Max(float64(ratingCount), 0), p99)
	return clamp01(1 - math.Log1p(r)/math.Log1p(p99))
}

// GenderRarity is 1 minus the share of same-gender eligible records with a
// rating count at most r.  ok is false when the gender is unrecognized or
// its bucket is empty.
func GenderRarity(stats *PopulationStats, gender string, ratingCount int) (score float64, ok bool) {
	bucket := stats.genderRatings[perfume.Normalize(gender)]
	if len(bucket) == 0 {
		return 0, false
	}
	atMost := sort.SearchInts(bucket, ratingCount+1)
	return 1 - float64(atMost)/float64(len(bucket)), true
}

func (e *Engine) genderRarity(stats *PopulationStats, s Subject) float64 {
	if v, ok := GenderRarity(stats, s.Gender, s.RatingCount); ok {
		return v
	}
	return e.cfg.GenderDefault
}

// NoteCountFactor is ln(1+n) / ln(1+maxNotes).
func NoteCountFactor(stats *PopulationStats, noteCount int) float64 {
	return clamp01(math.Log1p(float64(noteCount)) / math.Log1p(float64(stats.MaxNoteCount())))
}

// NoteRarity is the average rarity of notes divided by the population's
// 95th percentile, clamped to [0,1].  A zero percentile yields 0.
func NoteRarity(stats *PopulationStats, notes []string) float64 {
	p95 := stats.P95AverageRarity()
	if p95 <= 0 {
		return 0
	}
	return clamp01(stats.AverageRarity(notes) / p95)
}
