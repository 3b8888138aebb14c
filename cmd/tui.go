package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spotenv/internal/bootstrap"
	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/shared"
	"github.com/desertthunder/spotenv/internal/ui"
)

const tuiLogPath = "./tmp/spotenv-tui.log"

// redirectLogs sends logs to a file so they do not interfere with TUI rendering.
func (r *Runner) redirectLogs() error {
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)
	return nil
}

// runTUI bootstraps inside the progress TUI. Without autoStart the user confirms the plan first.
func (r *Runner) runTUI(ctx context.Context, b *bootstrap.Bootstrapper, path string, m *models.Manifest, autoStart bool) (*bootstrap.Result, error) {
	plan := ui.Plan{Path: path, Platform: b.Platform().Name(), Manifest: m}
	run := func(ctx context.Context, progress chan<- bootstrap.ProgressUpdate) (*bootstrap.Result, error) {
		return b.Bootstrap(ctx, path, m, progress)
	}

	model := ui.NewModel(ctx, plan, run, autoStart)
	_, err := tea.NewProgram(model).Run()
	model.Stop()
	if err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	res, err := model.Result()
	if res == nil && err == nil {
		return nil, fmt.Errorf("bootstrap %w", context.Canceled)
	}
	return res, err
}
