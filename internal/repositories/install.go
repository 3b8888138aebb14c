package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/shared"
)

// InstallRepository persists [models.InstallRecord] rows.
type InstallRepository struct {
	db *sql.DB
}

// NewInstallRepository creates a new InstallRepository with the given database connection
func NewInstallRepository(db *sql.DB) *InstallRepository {
	return &InstallRepository{db: db}
}

// Create inserts a new install attempt with a generated ID
func (r *InstallRepository) Create(ctx context.Context, install *models.InstallRecord) error {
	if err := install.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	install.ID = shared.GenerateID()
	if install.CreatedAt.IsZero() {
		install.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO installs (id, run_id, position, name, version, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		install.ID,
		install.RunID,
		install.Position,
		install.Name,
		install.Version,
		string(install.Status),
		nullString(install.ErrorMessage),
		install.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert install: %w", err)
	}
	return nil
}

// ListByRun retrieves the install attempts of a run in attempt order
func (r *InstallRepository) ListByRun(ctx context.Context, runID string) ([]*models.InstallRecord, error) {
	query := `
		SELECT id, run_id, position, name, version, status, error_message, created_at
		FROM installs
		WHERE run_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installs: %w", err)
	}
	defer rows.Close()

	var installs []*models.InstallRecord
	for rows.Next() {
		var (
			install      models.InstallRecord
			status       string
			errorMessage sql.NullString
		)
		if err := rows.Scan(&install.ID, &install.RunID, &install.Position, &install.Name, &install.Version, &status, &errorMessage, &install.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan install: %w", err)
		}
		install.Status = models.InstallStatus(status)
		install.ErrorMessage = errorMessage.String
		installs = append(installs, &install)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return installs, nil
}
