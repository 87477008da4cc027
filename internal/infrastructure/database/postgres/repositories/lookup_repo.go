package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/database/postgres"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// lookupTables whitelists the identifiers interpolated into lookup SQL.
var lookupTables = map[perfume.LookupTable]string{
	perfume.TableBrands:         "brands",
	perfume.TableConcentrations: "concentrations",
	perfume.TableManufacturers:  "manufacturers",
}

type postgresLookupRepo struct {
	executor queryExecutor
	logger   logging.Logger
}

// NewLookupRepository returns the lookup-or-create store for brands,
// concentrations and manufacturers.
func NewLookupRepository(conn *postgres.Connection, log logging.Logger) perfume.LookupRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	var exec queryExecutor
	if conn != nil {
		exec = conn.DB()
	}
	return &postgresLookupRepo{executor: exec, logger: log}
}

func tableName(t perfume.LookupTable) (string, error) {
	name, ok := lookupTables[t]
	if !ok {
		return "", errors.Newf(errors.ErrCodeLookupTable, "unknown lookup table %q", t)
	}
	return name, nil
}

func (r *postgresLookupRepo) FindID(ctx context.Context, t perfume.LookupTable, value string) (string, bool, error) {
	table, err := tableName(t)
	if err != nil {
		return "", false, err
	}
	query := fmt.Sprintf(`SELECT id::text FROM %s WHERE name = $1 LIMIT 1`, table)

	var id string
	err = r.executor.QueryRowContext(ctx, query, value).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to look up %s", table)
	}
	return id, true, nil
}

func (r *postgresLookupRepo) Create(ctx context.Context, t perfume.LookupTable, value, slug string) (string, error) {
	table, err := tableName(t)
	if err != nil {
		return "", err
	}

	var row *sql.Row
	if t.HasSlug() {
		query := fmt.Sprintf(`INSERT INTO %s (name, slug) VALUES ($1, $2) RETURNING id::text`, table)
		row = r.executor.QueryRowContext(ctx, query, value, slug)
	} else {
		query := fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1) RETURNING id::text`, table)
		row = r.executor.QueryRowContext(ctx, query, value)
	}

	var id string
	if err := row.Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return "", errors.Wrapf(err, errors.ErrCodeConflict, "%s %q already exists", table, value)
		}
		return "", errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to insert into %s", table)
	}
	r.logger.Debug("lookup row created",
		logging.String("table", table),
		logging.String("name", value),
		logging.String("id", id))
	return id, nil
}

func (r *postgresLookupRepo) ListAll(ctx context.Context, t perfume.LookupTable) (map[string]string, error) {
	table, err := tableName(t)
	if err != nil {
		return nil, err
	}
	rows, err := r.executor.QueryContext(ctx, fmt.Sprintf(`SELECT name, id::text FROM %s`, table))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to list %s", table)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to scan %s row", table)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to iterate %s", table)
	}
	return out, nil
}
