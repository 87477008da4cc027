package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/database/postgres"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// NewMigrateCmd manages the catalog schema.  Without a subcommand it applies
// every pending migration.
func NewMigrateCmd() *cobra.Command {
	var dir string
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the catalog schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnection(cmd, func(conn *postgres.Connection) error {
				state, err := conn.RunMigrations(dir)
				if err != nil {
					return err
				}
				return PrintResult(cmd, migrationResult{Action: "up", State: state})
			})
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "migration directory (default: database.migration_path)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnection(cmd, func(conn *postgres.Connection) error {
				state, err := conn.MigrationStatus(dir)
				if err != nil {
					return err
				}
				return PrintResult(cmd, migrationResult{Action: "status", State: state})
			})
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the last migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return errors.Newf(errors.ErrCodeValidation, "--steps must be greater than 0, got %d", steps)
			}
			return withConnection(cmd, func(conn *postgres.Connection) error {
				state, err := conn.RollbackMigrations(dir, steps)
				if err != nil {
					return err
				}
				return PrintResult(cmd, migrationResult{Action: "rollback", State: state})
			})
		},
	}
	rollbackCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	forceCmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied to clear a dirty state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return errors.Newf(errors.ErrCodeValidation, "invalid version %q", args[0])
			}
			return withConnection(cmd, func(conn *postgres.Connection) error {
				if err := conn.ForceMigrationVersion(dir, v); err != nil {
					return err
				}
				return PrintResult(cmd, migrationResult{Action: "force", State: postgres.MigrationState{Version: uint(v)}})
			})
		},
	}

	cmd.AddCommand(statusCmd, rollbackCmd, forceCmd)
	return cmd
}

func withConnection(cmd *cobra.Command, fn func(conn *postgres.Connection) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.commandContext(cmd)
	defer cancel()

	infra, err := cliCtx.openInfra(ctx, bootstrap.Options{Store: true})
	if err != nil {
		return err
	}
	defer infra.Close()
	if infra.Postgres == nil {
		return errors.New(errors.ErrCodeServiceUnavailable, "postgres is not connected")
	}
	return runUntilDone(ctx, func() error { return fn(infra.Postgres) })
}

// runUntilDone returns early with ctx's error when ctx ends before fn.
// golang-migrate takes no context, so fn keeps running in the background.
func runUntilDone(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type migrationResult struct {
	Action string                  `json:"action"`
	State  postgres.MigrationState `json:"state"`
}

func (r migrationResult) TableHeaders() []string { return []string{"Action", "Version", "Dirty"} }

func (r migrationResult) TableRows() [][]string {
	return [][]string{{r.Action, strconv.FormatUint(uint64(r.State.Version), 10), strconv.FormatBool(r.State.Dirty)}}
}

func (r migrationResult) String() string {
	return fmt.Sprintf("%s: version %d, dirty %t\n", r.Action, r.State.Version, r.State.Dirty)
}
