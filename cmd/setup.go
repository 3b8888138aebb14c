package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/spotenv/internal/shared"
	"github.com/urfave/cli/v3"
)

// ConfigInit writes the embedded example configuration to the --config path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Configuration written to %s\n", path)
	return nil
}

func (r *Runner) openDatabase() (*sql.DB, error) {
	if r.config.Database.Path == "" {
		return nil, fmt.Errorf("%w: database.path is empty", shared.ErrMissingConfig)
	}

	db, err := shared.OpenLedger(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// DBMigrate applies pending ledger migrations.
func (r *Runner) DBMigrate(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("running database migrations", "path", r.config.Database.Path)

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	r.writePlain("✓ %s at schema v%d\n", r.config.Database.Path, v)
	return nil
}

// DBRollback reverts the most recent ledger migration.
func (r *Runner) DBRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	v, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	r.logger.Info("rolled back migration", "version", v)
	r.writePlain("✓ %s at schema v%d\n", r.config.Database.Path, v)
	return nil
}

// DBStatus prints the ledger schema version.
func (r *Runner) DBStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	r.writePlain("%s: schema v%d\n", r.config.Database.Path, v)
	return nil
}

// History lists recorded bootstrap runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	ledger, closeLedger, err := r.openLedger()
	if err != nil {
		return err
	}
	defer closeLedger()
	if ledger == nil {
		return fmt.Errorf("%w: database.path is empty", shared.ErrMissingConfig)
	}

	runs, err := ledger.History(ctx, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}

	if len(runs) == 0 {
		r.writePlain("No runs recorded\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Bootstrap history (%d runs)", len(runs)))
	for _, s := range runs {
		env := s.Environment
		if env == "" {
			env = "(no environment)"
		}
		r.writePlain("%s  %-11s %s  %s\n",
			s.Run.StartedAt.Local().Format(time.DateTime), s.Run.State, s.Run.Duration().Round(time.Millisecond), env)
		if s.Run.ErrorMessage != "" {
			r.writePlain("    error: %s\n", s.Run.ErrorMessage)
		}
		for _, i := range s.Installs {
			r.writePlain("    [%s] %s\n", i.Status, i.Name)
		}
	}
	return nil
}
