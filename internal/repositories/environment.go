package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/shared"
)

const environmentColumns = `id, path, platform, interpreter, state, created_at, updated_at`

// EnvironmentRepository persists [models.EnvironmentRecord] rows.
type EnvironmentRepository struct {
	db *sql.DB
}

// NewEnvironmentRepository creates a new EnvironmentRepository with the given database connection
func NewEnvironmentRepository(db *sql.DB) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

// Save inserts env or, when its path is already recorded, updates that row.
//
// env.ID and env.CreatedAt are set from the stored row. An empty interpreter keeps the stored one.
func (r *EnvironmentRepository) Save(ctx context.Context, env *models.EnvironmentRecord) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if env.ID == "" {
		env.ID = shared.GenerateID()
	}

	query := `
		INSERT INTO environments (id, path, platform, interpreter, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			platform = excluded.platform,
			interpreter = CASE WHEN excluded.interpreter = '' THEN environments.interpreter ELSE excluded.interpreter END,
			state = excluded.state,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, env.ID, env.Path, env.Platform, env.Interpreter, env.State, now, now); err != nil {
		return fmt.Errorf("failed to save environment: %w", err)
	}

	stored, err := r.GetByPath(ctx, env.Path)
	if err != nil {
		return err
	}
	*env = *stored
	return nil
}

// Get retrieves an environment by ID
func (r *EnvironmentRepository) Get(ctx context.Context, id string) (*models.EnvironmentRecord, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments WHERE id = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

// GetByPath retrieves an environment by its absolute path
func (r *EnvironmentRepository) GetByPath(ctx context.Context, path string) (*models.EnvironmentRecord, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments WHERE path = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, path))
}

// List retrieves every recorded environment, most recently updated first
func (r *EnvironmentRepository) List(ctx context.Context) ([]*models.EnvironmentRecord, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query environments: %w", err)
	}
	defer rows.Close()

	var envs []*models.EnvironmentRecord
	for rows.Next() {
		env, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return envs, nil
}

// Delete removes an environment and, through the foreign keys, its runs and installs
func (r *EnvironmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM environments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete environment: %w", err)
	}
	return expectOne(result, "environment", id)
}

func (r *EnvironmentRepository) scan(row scanner) (*models.EnvironmentRecord, error) {
	var env models.EnvironmentRecord

	err := row.Scan(&env.ID, &env.Path, &env.Platform, &env.Interpreter, &env.State, &env.CreatedAt, &env.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: environment", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan environment: %w", err)
	}
	return &env, nil
}
