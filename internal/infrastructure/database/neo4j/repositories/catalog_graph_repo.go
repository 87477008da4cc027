// Package repositories holds the Cypher-backed catalog graph repository.
package repositories

import (
	"context"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	driver "github.com/turtacn/fragrance-etl/internal/infrastructure/database/neo4j"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// DefaultGraphBatchSize is the number of perfumes merged per transaction.
const DefaultGraphBatchSize = 500

// Note layers recorded on HAS_NOTE.
const (
	LayerTop    = "top"
	LayerMiddle = "middle"
	LayerBase   = "base"
	// LayerAccord marks notes taken from main accords because the record
	// has no pyramid.
	LayerAccord = "accord"
)

var constraintQueries = []string{
	`CREATE CONSTRAINT perfume_fingerprint IF NOT EXISTS FOR (p:Perfume) REQUIRE p.fingerprint IS UNIQUE`,
	`CREATE CONSTRAINT product_fingerprint IF NOT EXISTS FOR (v:Product) REQUIRE v.fingerprint IS UNIQUE`,
	`CREATE CONSTRAINT note_name IF NOT EXISTS FOR (n:Note) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT brand_name IF NOT EXISTS FOR (b:Brand) REQUIRE b.name IS UNIQUE`,
	`CREATE CONSTRAINT perfumer_name IF NOT EXISTS FOR (p:Perfumer) REQUIRE p.name IS UNIQUE`,
}

const mergePerfumesQuery = `
UNWIND $rows AS row
MERGE (p:Perfume {fingerprint: row.fingerprint})
SET p.name = row.name,
    p.concentration = row.concentration,
    p.release_year = row.release_year,
    p.gender = row.gender,
    p.score = row.score,
    p.is_active = row.is_active,
    p.updated_at = datetime()
MERGE (b:Brand {name: row.brand})
MERGE (p)-[:MADE_BY]->(b)
MERGE (v:Product {fingerprint: row.loose})
MERGE (p)-[:VARIANT_OF]->(v)
WITH p, row
FOREACH (note IN row.notes |
    MERGE (n:Note {name: note.name})
    MERGE (p)-[:HAS_NOTE {layer: note.layer}]->(n))
FOREACH (name IN row.perfumers |
    MERGE (pf:Perfumer {name: name})
    MERGE (p)-[:CREATED_BY]->(pf))
`

// CatalogGraphRepo mirrors the catalog into the note/brand/perfumer graph.
type CatalogGraphRepo struct {
	driver    driver.DriverInterface
	log       logging.Logger
	batchSize int
}

// NewCatalogGraphRepo creates the repository.  batchSize <= 0 uses
// DefaultGraphBatchSize.
func NewCatalogGraphRepo(d driver.DriverInterface, log logging.Logger, batchSize int) *CatalogGraphRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if batchSize <= 0 {
		batchSize = DefaultGraphBatchSize
	}
	return &CatalogGraphRepo{driver: d, log: log, batchSize: batchSize}
}

// EnsureConstraints creates the uniqueness constraints MERGE relies on.
func (r *CatalogGraphRepo) EnsureConstraints(ctx context.Context) error {
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		for _, q := range constraintQueries {
			if _, err := tx.Run(ctx, q, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeGraphSyncFailed, "failed to create graph constraints")
	}
	return nil
}

// SyncPerfumes merges perfumes and their relationships in batches.  Records
// without a strict fingerprint or brand are skipped.  Re-running with the
// same input leaves the graph unchanged apart from updated_at.
func (r *CatalogGraphRepo) SyncPerfumes(ctx context.Context, perfumes []perfume.Perfume) error {
	rows := make([]map[string]any, 0, len(perfumes))
	for _, p := range perfumes {
		if p.FingerprintStrict == "" || p.Brand == "" {
			continue
		}
		rows = append(rows, graphRow(p))
	}

	for start := 0; start < len(rows); start += r.batchSize {
		end := start + r.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
			res, err := tx.Run(ctx, mergePerfumesQuery, map[string]any{"rows": batch})
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		})
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeGraphSyncFailed, "graph batch %d-%d failed", start, end)
		}
	}

	r.log.Info("graph synced",
		logging.Int("perfumes", len(rows)),
		logging.Int("skipped", len(perfumes)-len(rows)))
	return nil
}

func graphRow(p perfume.Perfume) map[string]any {
	var year any
	if p.ReleaseYear > 0 {
		year = int64(p.ReleaseYear)
	}
	var score any
	if p.Score != nil {
		score = *p.Score
	}
	perfumers := p.CleanPerfumers
	if perfumers == nil {
		perfumers = []string{}
	}
	return map[string]any{
		"fingerprint":   p.FingerprintStrict,
		"loose":         p.FingerprintLoose,
		"name":          p.Name,
		"brand":         p.Brand,
		"concentration": p.Concentration,
		"release_year":  year,
		"gender":        perfume.CanonicalGender(p.Gender),
		"score":         score,
		"is_active":     p.IsActive,
		"notes":         layeredNotes(p),
		"perfumers":     perfumers,
	}
}

func layeredNotes(p perfume.Perfume) []map[string]any {
	out := make([]map[string]any, 0, len(p.Notes))
	add := func(layer string, notes []string) {
		for _, n := range notes {
			out = append(out, map[string]any{"name": n, "layer": layer})
		}
	}
	add(LayerTop, p.CleanTopNotes)
	add(LayerMiddle, p.CleanMiddleNotes)
	add(LayerBase, p.CleanBaseNotes)
	if len(out) == 0 {
		add(LayerAccord, p.Notes)
	}
	return out
}
