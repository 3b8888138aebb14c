package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/shared"
)

const runColumns = `id, environment_id, state, error_message, manifest_source, started_at, finished_at`

// RunRepository persists [models.RunRecord] rows.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save inserts run, or updates the row with the same ID.
func (r *RunRepository) Save(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.State == "" {
		return fmt.Errorf("validation failed: %w: run state is required", shared.ErrInvalidArgument)
	}

	query := `
		INSERT INTO runs (id, environment_id, state, error_message, manifest_source, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			environment_id = excluded.environment_id,
			state = excluded.state,
			error_message = excluded.error_message,
			manifest_source = excluded.manifest_source,
			finished_at = excluded.finished_at
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		nullString(run.EnvironmentID),
		run.State,
		nullString(run.ErrorMessage),
		run.ManifestSource,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

// List retrieves runs matching the given criteria, newest first.
//
// Supported criteria: "environment_id" (string), "state" (string), "limit" (int).
func (r *RunRepository) List(ctx context.Context, criteria map[string]any) ([]*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	args := []any{}

	if envID, ok := criteria["environment_id"].(string); ok && envID != "" {
		query += " AND environment_id = ?"
		args = append(args, envID)
	}

	if state, ok := criteria["state"].(string); ok && state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}

	query += " ORDER BY started_at DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) scan(row scanner) (*models.RunRecord, error) {
	var (
		run          models.RunRecord
		envID        sql.NullString
		errorMessage sql.NullString
	)

	err := row.Scan(&run.ID, &envID, &run.State, &errorMessage, &run.ManifestSource, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.EnvironmentID = envID.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
