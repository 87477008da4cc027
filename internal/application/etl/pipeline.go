package etl

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/fragrance-etl/internal/config"
	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/domain/scoring"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// Result is the fully materialized output of the core passes.  Perfumes is
// parallel to Dedup.Survivors.
type Result struct {
	RunID    string                   `json:"run_id"`
	Input    int                      `json:"input"`
	Perfumes []perfume.Perfume        `json:"perfumes"`
	Dedup    perfume.DedupResult      `json:"-"`
	Stats    *scoring.PopulationStats `json:"-"`
	Warnings []scoring.Warning        `json:"warnings"`
	Mean     float64                  `json:"mean_score"`
}

// Summary describes a complete Run including the sinks.
type Summary struct {
	Result       *Result           `json:"-"`
	Source       string            `json:"source"`
	Sync         *SyncReport       `json:"sync,omitempty"`
	Reports      []string          `json:"reports,omitempty"`
	Indexed      int               `json:"indexed"`
	SinkFailures map[string]string `json:"sink_failures,omitempty"`
	Event        *RunCompleted     `json:"event,omitempty"`
	Elapsed      time.Duration     `json:"elapsed"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSource sets the catalog reader used by Run.
func WithSource(s Source) Option { return func(p *Pipeline) { p.source = s } }

// WithLoader sets the relational store sink.
func WithLoader(l *Loader) Option { return func(p *Pipeline) { p.loader = l } }

// WithReportStore enables the exclusion report sink.
func WithReportStore(s ReportStore) Option { return func(p *Pipeline) { p.reports = s } }

// WithIndexer enables the search index sink.
func WithIndexer(i SearchIndexer) Option { return func(p *Pipeline) { p.indexer = i } }

// WithGraph enables the graph sink.
func WithGraph(g GraphSync) Option { return func(p *Pipeline) { p.graph = g } }

// WithEvents publishes RunCompleted to topic.
func WithEvents(pub EventPublisher, topic string) Option {
	return func(p *Pipeline) { p.events, p.eventTopic = pub, topic }
}

// WithMetrics sets the run metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Pipeline runs the catalog passes in order: dedup, note extraction,
// scoring, activity flag; then the configured sinks.
type Pipeline struct {
	cfg     config.PipelineConfig
	cleaner *perfume.NoteCleaner
	engine  *scoring.Engine
	logger  logging.Logger
	metrics Metrics

	source     Source
	loader     *Loader
	reports    ReportStore
	indexer    SearchIndexer
	graph      GraphSync
	events     EventPublisher
	eventTopic string
}

// NewPipeline creates a Pipeline from configuration.
func NewPipeline(cfg config.PipelineConfig, logger logging.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	p := &Pipeline{
		cfg:     cfg,
		cleaner: perfume.NewNoteCleaner(NoteCleanerConfig(cfg.Notes)),
		engine:  scoring.NewEngine(ScoringConfig(cfg.Scoring), logger),
		logger:  logger.Named("pipeline"),
		metrics: nopMetrics{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ScoringConfig converts the configuration section to the engine policy.
// Zero weights select the canonical ones; an unset gender default keeps the
// engine's.
func ScoringConfig(c config.ScoringConfig) scoring.Config {
	sc := scoring.DefaultConfig()
	if c.Threshold > 0 {
		sc.Threshold = c.Threshold
	}
	if c.FallbackThreshold > 0 {
		sc.FallbackThreshold = c.FallbackThreshold
	}
	if c.MinEligible > 0 {
		sc.MinEligible = c.MinEligible
	}
	if c.GenderDefault != nil {
		sc.GenderDefault = *c.GenderDefault
	}
	if c.Weights.Sum() > 0 {
		sc.Weights = scoring.Weights{
			Obscurity:  c.Weights.Obscurity,
			Gender:     c.Weights.Gender,
			NoteCount:  c.Weights.NoteCount,
			NoteRarity: c.Weights.NoteRarity,
		}
	}
	return sc
}

// NoteCleanerConfig converts the notes section; empty lists keep the
// built-in vocabulary.
func NoteCleanerConfig(c config.NotesConfig) perfume.NoteCleanerConfig {
	var nc perfume.NoteCleanerConfig
	if len(c.Qualifiers) > 0 {
		nc.Qualifiers = c.Qualifiers
	}
	if len(c.Prefixes) > 0 {
		nc.Prefixes = c.Prefixes
	}
	return nc
}

// Process runs the core passes over records.  Every record passes dedup
// before any statistic is computed.  It only fails when ctx is done.
func (p *Pipeline) Process(ctx context.Context, records []perfume.RawRecord) (*Result, error) {
	ctx, runID := p.ensureRunID(ctx)
	log := p.logger.WithContext(ctx)
	slow := p.cfg.SlowStage

	start := time.Now()
	dedup := perfume.Deduplicate(records)
	p.observe(StageDedup, start)
	logging.LogStageDuration(log, StageDedup, start, slow,
		logging.Int("input", dedup.InputCount),
		logging.Int("survivors", len(dedup.Survivors)),
		logging.Int("groups", len(dedup.Groups)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	perfumes := make([]perfume.Perfume, len(dedup.Survivors))
	subjects := make([]scoring.Subject, len(dedup.Survivors))
	for i, rec := range dedup.Survivors {
		perfumes[i] = p.enrich(rec, dedup.Fingerprints[i])
		subjects[i] = scoring.Subject{RatingCount: rec.RatingCount, Gender: rec.Gender, Notes: perfumes[i].Notes}
	}
	p.observe(StageNotes, start)
	logging.LogStageDuration(log, StageNotes, start, slow)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	run := p.engine.ScoreAll(subjects)
	for i, r := range run.Results {
		perfumes[i].Eligible = r.Eligible
		perfumes[i].Scores = r.Scores
		perfumes[i].Score = r.Score
	}
	p.observe(StageScore, start)
	logging.LogStageDuration(log, StageScore, start, slow, logging.Int("eligible", run.Stats.EligibleCount()))

	for _, w := range run.Warnings {
		p.metrics.IncWarning(string(w.Kind))
	}
	p.metrics.SetRecords(RecordsRead, len(records))
	p.metrics.SetRecords(RecordsDeduped, len(perfumes))
	p.metrics.SetRecords(RecordsEligible, run.Stats.EligibleCount())

	return &Result{
		RunID:    runID,
		Input:    len(records),
		Perfumes: perfumes,
		Dedup:    dedup,
		Stats:    run.Stats,
		Warnings: run.Warnings,
		Mean:     run.MeanScore(),
	}, nil
}

func (p *Pipeline) enrich(rec perfume.RawRecord, strict string) perfume.Perfume {
	notes := p.cleaner.AllNotes(rec)
	return perfume.Perfume{
		RawRecord:         rec,
		FingerprintStrict: strict,
		FingerprintLoose:  perfume.LooseKey(rec),
		CleanTopNotes:     p.cleaner.ExtractList(rec.TopNotes),
		CleanMiddleNotes:  p.cleaner.ExtractList(rec.MiddleNotes),
		CleanBaseNotes:    p.cleaner.ExtractList(rec.BaseNotes),
		CleanPerfumers:    p.cleaner.ExtractList(rec.Perfumers),
		Notes:             notes,
		NoteCount:         len(notes),
		IsActive:          perfume.IsActive(rec),
		ModelVersion:      p.cfg.ModelVersion,
	}
}

// Run reads location, processes it and feeds every configured sink.  It
// fails when the source cannot be read or the store sync cannot start;
// optional sink failures are logged and listed in the summary.
func (p *Pipeline) Run(ctx context.Context, location string) (*Summary, error) {
	if p.source == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "pipeline has no source")
	}
	if location == "" {
		location = p.cfg.Source.Location
	}
	ctx, runID := p.ensureRunID(ctx)
	log := p.logger.WithContext(ctx)
	begin := time.Now()

	log.Info("run started", logging.String("source", location))
	start := time.Now()
	records, err := p.source.Read(ctx, location)
	if err != nil {
		return nil, err
	}
	p.observe(StageRead, start)
	logging.LogStageDuration(log, StageRead, start, p.cfg.SlowStage, logging.Int("records", len(records)))

	res, err := p.Process(ctx, records)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Result: res, Source: location, SinkFailures: map[string]string{}}

	if p.loader != nil {
		start = time.Now()
		rep, err := p.loader.Sync(ctx, res.Perfumes)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUpsertFailed, "store sync")
		}
		sum.Sync = rep
		p.metrics.SetRecords(RecordsUpserted, rep.Upserted)
		p.metrics.SetRecords(RecordsRejected, rep.Rejected)
		p.observe(StageLoad, start)
		logging.LogStageDuration(log, StageLoad, start, p.cfg.SlowStage)
	}

	if p.reports != nil && p.cfg.Report.Enabled {
		p.sink(ctx, sum, StageReport, func() error {
			locs, err := PublishReport(ctx, p.reports, BuildExclusionReport(runID, res.Dedup, p.cfg.Report.MaxGroups))
			sum.Reports = locs
			return err
		})
		p.sink(ctx, sum, StageSnapshot, func() error {
			loc, err := PublishSnapshot(ctx, p.reports, runID, p.cfg.ModelVersion, res.Perfumes)
			if err == nil {
				sum.Reports = append(sum.Reports, loc)
			}
			return err
		})
	}
	if p.indexer != nil {
		p.sink(ctx, sum, StageIndex, func() error {
			n, err := p.indexer.IndexPerfumes(ctx, res.Perfumes)
			sum.Indexed = n
			return err
		})
	}
	if p.graph != nil {
		p.sink(ctx, sum, StageGraph, func() error {
			return p.graph.SyncPerfumes(ctx, res.Perfumes)
		})
	}

	evt := p.completedEvent(res, sum)
	sum.Event = &evt
	if p.events != nil {
		p.sink(ctx, sum, StageEvent, func() error {
			return p.events.PublishJSON(ctx, p.eventTopic, runID, evt)
		})
	}

	sum.Elapsed = time.Since(begin)
	log.Info("run finished",
		logging.String("source", location),
		logging.Int("input", res.Input),
		logging.Int("perfumes", len(res.Perfumes)),
		logging.Int("sink_failures", len(sum.SinkFailures)),
		logging.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

func (p *Pipeline) sink(ctx context.Context, sum *Summary, stage string, fn func() error) {
	start := time.Now()
	if err := fn(); err != nil {
		sum.SinkFailures[stage] = err.Error()
		p.metrics.IncSinkFailure(stage)
		p.logger.WithContext(ctx).WithError(err).Error("sink failed", logging.String(logging.FieldStage, stage))
		return
	}
	p.observe(stage, start)
}

func (p *Pipeline) completedEvent(res *Result, sum *Summary) RunCompleted {
	evt := RunCompleted{
		RunID:  res.RunID,
		Source: sum.Source,
		Totals: RunTotals{
			Read:     res.Input,
			Imported: len(res.Perfumes),
			Excluded: res.Dedup.Removed(),
		},
		Eligible:     res.Stats.EligibleCount(),
		Threshold:    res.Stats.Threshold(),
		Fallback:     res.Stats.FallbackApplied(),
		MeanScore:    res.Mean,
		ModelVersion: p.cfg.ModelVersion,
		FinishedAt:   time.Now().UTC(),
	}
	if sum.Sync != nil {
		evt.Totals.Upserted = sum.Sync.Upserted
		evt.Totals.Rejected = sum.Sync.Rejected
		evt.Totals.Failed = sum.Sync.Failed
	}
	for _, w := range res.Warnings {
		evt.Warnings = append(evt.Warnings, string(w.Kind))
	}
	return evt
}

func (p *Pipeline) ensureRunID(ctx context.Context) (context.Context, string) {
	if id := logging.RunIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return logging.WithRunID(ctx, id), id
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.ObserveStage(stage, time.Since(start))
}
