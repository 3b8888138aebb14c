package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/spotenv/internal/models"
)

// PipInstaller installs dependencies with the environment's own pip.
type PipInstaller struct {
	exec Executor
}

// NewPipInstaller creates a [PipInstaller] running through exec.
func NewPipInstaller(exec Executor) *PipInstaller {
	return &PipInstaller{exec: exec}
}

// Install runs `python -m pip install <spec>` inside the environment.
func (p *PipInstaller) Install(ctx context.Context, python string, env []string, dep models.Dependency) error {
	_, err := p.exec.Run(ctx, Command{
		Name: python,
		Args: []string{"-m", "pip", "install", "--disable-pip-version-check", "--no-input", dep.Spec()},
		Env:  env,
	})
	return err
}

type pipListEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Installed returns the installed distributions keyed by normalised name.
func (p *PipInstaller) Installed(ctx context.Context, python string, env []string) (map[string]string, error) {
	res, err := p.exec.Run(ctx, Command{
		Name: python,
		Args: []string{"-m", "pip", "list", "--format=json", "--disable-pip-version-check"},
		Env:  env,
	})
	if err != nil {
		return nil, err
	}

	var entries []pipListEntry
	if err := json.Unmarshal([]byte(res.Stdout), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse pip list output: %w", err)
	}

	installed := make(map[string]string, len(entries))
	for _, e := range entries {
		installed[models.NormalizeName(e.Name)] = e.Version
	}
	return installed, nil
}
