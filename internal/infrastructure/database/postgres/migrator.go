package postgres

import (
	"errors"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/fragrance-etl/pkg/errors"
)

// MigrationState is the schema version recorded by golang-migrate.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// newMigrate binds golang-migrate to the open pool.  The caller must not
// close the returned instance: closing it would close the pool too.
func (c *Connection) newMigrate(dir string) (*migrate.Migrate, error) {
	driver, err := migratepg.WithInstance(c.db, &migratepg.Config{})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMigrationFailed, "failed to create migration driver")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMigrationFailed, "invalid migration path")
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMigrationFailed, "failed to create migrate instance")
	}
	return m, nil
}

// RunMigrations applies every pending migration under dir.  An empty dir uses
// the configured migration path.
func (c *Connection) RunMigrations(dir string) (MigrationState, error) {
	m, err := c.newMigrate(c.migrationDir(dir))
	if err != nil {
		return MigrationState{}, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		v, dirty, _ := m.Version()
		return MigrationState{Version: v, Dirty: dirty},
			apperrors.Wrapf(err, apperrors.ErrCodeMigrationFailed, "failed to run migrations (current version %d)", v)
	}
	state, err := version(m)
	if err != nil {
		return state, err
	}
	c.logger.Info("migrations applied",
		logging.Int64("version", int64(state.Version)),
		logging.Bool("dirty", state.Dirty))
	return state, nil
}

// RollbackMigrations reverts steps migrations.
func (c *Connection) RollbackMigrations(dir string, steps int) (MigrationState, error) {
	if steps <= 0 {
		return MigrationState{}, apperrors.Newf(apperrors.ErrCodeValidation, "steps must be greater than 0, got %d", steps)
	}
	m, err := c.newMigrate(c.migrationDir(dir))
	if err != nil {
		return MigrationState{}, err
	}
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return MigrationState{}, apperrors.New(apperrors.ErrCodeMigrationFailed, "no migrations to roll back")
		}
		return MigrationState{}, apperrors.Wrapf(err, apperrors.ErrCodeMigrationFailed, "failed to roll back %d step(s)", steps)
	}
	state, err := version(m)
	if err == nil {
		c.logger.Warn("migrations rolled back",
			logging.Int("steps", steps),
			logging.Int64("version", int64(state.Version)))
	}
	return state, err
}

// MigrationStatus reports the applied version.  A database with no
// migrations reports version 0.
func (c *Connection) MigrationStatus(dir string) (MigrationState, error) {
	m, err := c.newMigrate(c.migrationDir(dir))
	if err != nil {
		return MigrationState{}, err
	}
	return version(m)
}

// ForceMigrationVersion marks version as applied without running it; used to
// clear a dirty state after a manual fix.
func (c *Connection) ForceMigrationVersion(dir string, v int) error {
	m, err := c.newMigrate(c.migrationDir(dir))
	if err != nil {
		return err
	}
	if err := m.Force(v); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeMigrationFailed, "failed to force version %d", v)
	}
	c.logger.Warn("migration version forced", logging.Int("version", v))
	return nil
}

func (c *Connection) migrationDir(dir string) string {
	if dir != "" {
		return dir
	}
	if c.cfg.MigrationPath != "" {
		return c.cfg.MigrationPath
	}
	return "migrations"
}

func version(m *migrate.Migrate) (MigrationState, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationState{}, nil
	}
	if err != nil {
		return MigrationState{}, apperrors.Wrap(err, apperrors.ErrCodeMigrationFailed, "failed to read migration version")
	}
	return MigrationState{Version: v, Dirty: dirty}, nil
}
