package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/spotenv/internal/models"
)

// Ledger groups the ledger repositories and records bootstrap progress through them.
type Ledger struct {
	Environments *EnvironmentRepository
	Runs         *RunRepository
	Installs     *InstallRepository
}

// NewLedger creates a [Ledger] over db.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		Environments: NewEnvironmentRepository(db),
		Runs:         NewRunRepository(db),
		Installs:     NewInstallRepository(db),
	}
}

func (l *Ledger) SaveEnvironment(ctx context.Context, rec *models.EnvironmentRecord) error {
	return l.Environments.Save(ctx, rec)
}

func (l *Ledger) SaveRun(ctx context.Context, run *models.RunRecord) error {
	return l.Runs.Save(ctx, run)
}

func (l *Ledger) SaveInstall(ctx context.Context, install *models.InstallRecord) error {
	return l.Installs.Create(ctx, install)
}

// RunSummary is a run with its environment path and install attempts.
type RunSummary struct {
	Run         *models.RunRecord       `json:"run"`
	Environment string                  `json:"environment,omitempty"`
	Installs    []*models.InstallRecord `json:"installs"`
}

// History returns the most recent runs, newest first. A limit of zero returns every run.
func (l *Ledger) History(ctx context.Context, limit int) ([]RunSummary, error) {
	runs, err := l.Runs.List(ctx, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		s := RunSummary{Run: run}
		if run.EnvironmentID != "" {
			if env, err := l.Environments.Get(ctx, run.EnvironmentID); err == nil {
				s.Environment = env.Path
			}
		}
		if s.Installs, err = l.Installs.ListByRun(ctx, run.ID); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
