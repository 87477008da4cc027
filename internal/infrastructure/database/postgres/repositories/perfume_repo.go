package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/database/postgres"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

var perfumeColumns = []string{
	"fingerprint_strict", "fingerprint_loose", "name", "brand_id",
	"concentration_id", "manufacturer_id", "release_year", "gender",
	"top_notes", "middle_notes", "base_notes", "perfumers",
	"score", "model_version", "is_active", "is_uncertain", "is_linear",
	"source_record_slug",
}

// upsertTail updates every column but the identity tuple on conflict.
var upsertTail = func() string {
	identity := map[string]bool{"brand_id": true, "name": true, "concentration_id": true, "release_year": true}
	var sets []string
	for _, c := range perfumeColumns {
		if !identity[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	sets = append(sets, "updated_at = NOW()")
	return " ON CONFLICT ON CONSTRAINT perfumes_identity_key DO UPDATE SET " + strings.Join(sets, ", ")
}()

type postgresPerfumeRepo struct {
	executor queryExecutor
	logger   logging.Logger
}

// NewPerfumeRepository returns the perfume upsert store.
func NewPerfumeRepository(conn *postgres.Connection, log logging.Logger) perfume.PerfumeWriter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	var exec queryExecutor
	if conn != nil {
		exec = conn.DB()
	}
	return &postgresPerfumeRepo{executor: exec, logger: log}
}

// UpsertBatch writes rows in one INSERT ... ON CONFLICT statement.  Rows
// sharing a conflict key must be split across batches by the caller.
func (r *postgresPerfumeRepo) UpsertBatch(ctx context.Context, rows []perfume.PerfumeRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query, args := buildUpsert(rows)
	res, err := r.executor.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrCodeUpsertFailed, "failed to upsert %d perfumes", len(rows))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	r.logger.Debug("perfumes upserted", logging.Int("rows", len(rows)), logging.Int64("affected", n))
	return n, nil
}

func buildUpsert(rows []perfume.PerfumeRow) (string, []interface{}) {
	width := len(perfumeColumns)
	args := make([]interface{}, 0, len(rows)*width)
	tuples := make([]string, len(rows))

	for i, row := range rows {
		ph := make([]string, width)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		tuples[i] = "(" + strings.Join(ph, ", ") + ")"
		args = append(args,
			row.FingerprintStrict, row.FingerprintLoose, row.Name, row.BrandID,
			row.ConcentrationID, row.ManufacturerID, row.ReleaseYear, row.Gender,
			pq.Array(row.TopNotes), pq.Array(row.MiddleNotes), pq.Array(row.BaseNotes), pq.Array(row.Perfumers),
			row.Score, row.ModelVersion, row.IsActive, row.IsUncertain, row.IsLinear,
			row.SourceRecordSlug,
		)
	}

	query := "INSERT INTO perfumes (" + strings.Join(perfumeColumns, ", ") + ") VALUES " +
		strings.Join(tuples, ", ") + upsertTail
	return query, args
}
