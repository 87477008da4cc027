package etl

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// LoaderConfig tunes the store sync.
type LoaderConfig struct {
	BatchSize    int
	Concurrency  int
	ModelVersion int
}

// SyncReport summarizes one Sync call.
type SyncReport struct {
	Upserted int         `json:"upserted"`
	Rejected int         `json:"rejected"`
	Failed   int         `json:"failed"`
	Batches  int         `json:"batches"`
	Lookups  LookupStats `json:"lookups"`
}

// Loader writes scored perfumes to the relational store.  Brand,
// concentration and manufacturer text is resolved to IDs through a
// LookupCache; records without a brand are rejected.
type Loader struct {
	cache  *LookupCache
	writer perfume.PerfumeWriter
	cfg    LoaderConfig
	logger logging.Logger
}

// NewLoader creates a Loader.
func NewLoader(cache *LookupCache, writer perfume.PerfumeWriter, cfg LoaderConfig, logger logging.Logger) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ModelVersion <= 0 {
		cfg.ModelVersion = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loader{cache: cache, writer: writer, cfg: cfg, logger: logger.Named("loader")}
}

type lookupRefs struct {
	brand, concentration, manufacturer string
	err                                error
}

// Sync upserts perfumes.  It fails only when the lookup tables cannot be
// prefetched or ctx is cancelled; per-record failures are counted.
func (l *Loader) Sync(ctx context.Context, perfumes []perfume.Perfume) (*SyncReport, error) {
	if err := l.cache.Prefetch(ctx); err != nil {
		return nil, err
	}

	refs, err := l.resolveAll(ctx, perfumes)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	rows := make([]perfume.PerfumeRow, 0, len(perfumes))
	for i, p := range perfumes {
		switch {
		case refs[i].err != nil:
			report.Failed++
		case refs[i].brand == "":
			report.Rejected++
			l.logger.Debug("record rejected",
				logging.String("brand", p.Brand),
				logging.String("name", p.Name),
				logging.String(logging.FieldErrorCode, string(errors.ErrCodeBrandUnresolved)))
		default:
			rows = append(rows, buildRow(p, refs[i], l.cfg.ModelVersion))
		}
	}

	for _, batch := range splitBatches(rows, l.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Batches++
		l.writeBatch(ctx, batch, report)
	}
	report.Lookups = l.cache.Stats()

	l.logger.Info("sync finished",
		logging.Int("upserted", report.Upserted),
		logging.Int("rejected", report.Rejected),
		logging.Int("failed", report.Failed),
		logging.Int("batches", report.Batches))
	return report, nil
}

func (l *Loader) resolveAll(ctx context.Context, perfumes []perfume.Perfume) ([]lookupRefs, error) {
	refs := make([]lookupRefs, len(perfumes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i := range perfumes {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refs[i] = l.resolve(gctx, perfumes[i].RawRecord)
			if refs[i].err != nil {
				l.logger.WithError(refs[i].err).Warn("lookup failed",
					logging.String("brand", perfumes[i].Brand),
					logging.String("name", perfumes[i].Name))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (l *Loader) resolve(ctx context.Context, r perfume.RawRecord) lookupRefs {
	var refs lookupRefs
	if refs.brand, refs.err = l.cache.Resolve(ctx, perfume.TableBrands, r.Brand); refs.err != nil {
		return refs
	}
	if refs.concentration, refs.err = l.cache.Resolve(ctx, perfume.TableConcentrations, r.Concentration); refs.err != nil {
		return refs
	}
	refs.manufacturer, refs.err = l.cache.Resolve(ctx, perfume.TableManufacturers, r.Manufacturer)
	return refs
}

func (l *Loader) writeBatch(ctx context.Context, batch []perfume.PerfumeRow, report *SyncReport) {
	start := time.Now()
	_, err := l.writer.UpsertBatch(ctx, batch)
	if err == nil {
		report.Upserted += len(batch)
		l.logger.Debug("batch upserted", logging.Int("rows", len(batch)), logging.Duration("took", time.Since(start)))
		return
	}
	l.logger.WithError(err).Warn("batch upsert failed, retrying row by row", logging.Int("rows", len(batch)))

	for _, row := range batch {
		if _, err := l.writer.UpsertBatch(ctx, []perfume.PerfumeRow{row}); err != nil {
			report.Failed++
			l.logger.WithError(err).Error("row upsert failed",
				logging.String("source_record_slug", row.SourceRecordSlug))
			continue
		}
		report.Upserted++
	}
}

// splitBatches cuts rows into batches of at most size, starting a new batch
// whenever a conflict key repeats: one upsert statement cannot touch the
// same row twice.
func splitBatches(rows []perfume.PerfumeRow, size int) [][]perfume.PerfumeRow {
	var (
		out  [][]perfume.PerfumeRow
		cur  []perfume.PerfumeRow
		seen = make(map[string]struct{}, size)
	)
	for _, r := range rows {
		key := r.ConflictKey()
		if _, dup := seen[key]; dup || len(cur) == size {
			out = append(out, cur)
			cur = nil
			seen = make(map[string]struct{}, size)
		}
		cur = append(cur, r)
		seen[key] = struct{}{}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func buildRow(p perfume.Perfume, refs lookupRefs, modelVersion int) perfume.PerfumeRow {
	row := perfume.PerfumeRow{
		FingerprintStrict: p.FingerprintStrict,
		FingerprintLoose:  p.FingerprintLoose,
		Name:              p.Name,
		BrandID:           refs.brand,
		ConcentrationID:   optString(refs.concentration),
		ManufacturerID:    optString(refs.manufacturer),
		Gender:            optString(perfume.CanonicalGender(p.Gender)),
		TopNotes:          nonNil(p.CleanTopNotes),
		MiddleNotes:       nonNil(p.CleanMiddleNotes),
		BaseNotes:         nonNil(p.CleanBaseNotes),
		Perfumers:         nonNil(p.CleanPerfumers),
		Score:             p.Score,
		ModelVersion:      modelVersion,
		IsActive:          p.IsActive,
		IsUncertain:       p.IsUncertain,
		IsLinear:          p.IsLinear,
		SourceRecordSlug:  perfume.SourceSlug(p.RawRecord),
	}
	if p.ReleaseYear > 0 {
		y := p.ReleaseYear
		row.ReleaseYear = &y
	}
	return row
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
