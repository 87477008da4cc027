// Package etl orchestrates a catalog run: it reads the source, hands the
// records to the pure dedup/notes/scoring core and fans the scored catalog
// out to the store, the exclusion report, the search index, the graph and
// the event bus.
package etl

import (
	"context"
	"time"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
)

// Source reads raw catalog records from a location (a path or object URL).
type Source interface {
	Read(ctx context.Context, location string) ([]perfume.RawRecord, error)
}

// ReportStore persists a named report artifact and returns where it landed.
type ReportStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// SearchIndexer feeds the autocomplete index.
type SearchIndexer interface {
	IndexPerfumes(ctx context.Context, perfumes []perfume.Perfume) (indexed int, err error)
}

// GraphSync mirrors the catalog into the note/brand/perfumer graph.
type GraphSync interface {
	SyncPerfumes(ctx context.Context, perfumes []perfume.Perfume) error
}

// EventPublisher publishes JSON events keyed by key.
type EventPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

// Metrics records run-level measurements.
type Metrics interface {
	ObserveStage(stage string, d time.Duration)
	SetRecords(kind string, n int)
	IncWarning(kind string)
	IncSinkFailure(sink string)
}

// Record kinds reported through Metrics.SetRecords.
const (
	RecordsRead     = "read"
	RecordsDeduped  = "deduplicated"
	RecordsEligible = "eligible"
	RecordsUpserted = "upserted"
	RecordsRejected = "rejected"
)

// Pipeline stages, used for timing and logging.
const (
	StageRead     = "read"
	StageDedup    = "dedup"
	StageNotes    = "notes"
	StageScore    = "score"
	StageLoad     = "load"
	StageReport   = "report"
	StageSnapshot = "snapshot"
	StageIndex    = "index"
	StageGraph    = "graph"
	StageEvent    = "event"
)

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, time.Duration) {}
func (nopMetrics) SetRecords(string, int) {}
func (nopMetrics) IncWarning(string) {}
func (nopMetrics) IncSinkFailure(string) {}
