package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/desertthunder/spotenv/internal/shared"
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+!_-]*$`)
	separatorRun   = regexp.MustCompile(`[-_.]+`)
)

// NormalizeName returns the PEP 503 normalised form of a distribution name.
func NormalizeName(name string) string {
	return strings.ToLower(separatorRun.ReplaceAllString(strings.TrimSpace(name), "-"))
}

// Dependency is a single manifest entry. An empty Version installs the latest release.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Key returns the normalised name used for uniqueness checks.
func (d Dependency) Key() string {
	return NormalizeName(d.Name)
}

// Spec renders the requirement passed to the package manager.
func (d Dependency) Spec() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + "==" + d.Version
}

func (d Dependency) String() string { return d.Spec() }

// Validate checks the name and version are well formed.
func (d Dependency) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: invalid name %q", shared.ErrInvalidDependency, d.Name)
	}
	if d.Version != "" && !versionPattern.MatchString(d.Version) {
		return fmt.Errorf("%w: invalid version %q for %s", shared.ErrInvalidDependency, d.Version, d.Name)
	}
	return nil
}

// Manifest is the ordered list of dependencies installed into the environment.
//
// It is immutable once built: accessors return copies.
type Manifest struct {
	deps []Dependency
}

// NewManifest validates deps and builds a [Manifest] preserving their order.
//
// Names must be unique after normalisation.
func NewManifest(deps ...Dependency) (*Manifest, error) {
	seen := make(map[string]string, len(deps))
	out := make([]Dependency, 0, len(deps))

	for _, d := range deps {
		d.Name = strings.TrimSpace(d.Name)
		d.Version = strings.TrimSpace(d.Version)

		if err := d.Validate(); err != nil {
			return nil, err
		}
		if prev, ok := seen[d.Key()]; ok {
			return nil, fmt.Errorf("%w: %s duplicates %s", shared.ErrDuplicateDependency, d.Name, prev)
		}
		seen[d.Key()] = d.Name
		out = append(out, d)
	}

	return &Manifest{deps: out}, nil
}

// Dependencies returns a copy of the entries in install order.
func (m *Manifest) Dependencies() []Dependency {
	if m == nil {
		return nil
	}
	return append([]Dependency(nil), m.deps...)
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.deps)
}

// Names returns the entry names in install order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, m.Len())
	for _, d := range m.Dependencies() {
		names = append(names, d.Name)
	}
	return names
}

// InstallStatus is the outcome of a single install attempt.
type InstallStatus string

const (
	InstallStatusInstalled InstallStatus = "installed"
	InstallStatusFailed    InstallStatus = "failed"
)

// EnvironmentRecord is a persisted environment, unique by Path.
type EnvironmentRecord struct {
	ID          string
	Path        string
	Platform    string
	Interpreter string
	State       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks required fields.
func (e *EnvironmentRecord) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("%w: environment path is required", shared.ErrInvalidArgument)
	}
	if e.Platform == "" {
		return fmt.Errorf("%w: environment platform is required", shared.ErrInvalidArgument)
	}
	return nil
}

// RunRecord is one bootstrap attempt.
type RunRecord struct {
	ID             string    `json:"id"`
	EnvironmentID  string    `json:"environment_id,omitempty"` // empty when creation failed before an environment existed
	State          string    `json:"state"`
	ErrorMessage   string    `json:"error,omitempty"`
	ManifestSource string    `json:"manifest_source,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// InstallRecord is one install attempt within a run.
type InstallRecord struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	Position     int           `json:"position"`
	Name         string        `json:"name"`
	Version      string        `json:"version,omitempty"`
	Status       InstallStatus `json:"status"`
	ErrorMessage string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Validate checks required fields.
func (i *InstallRecord) Validate() error {
	if i.RunID == "" {
		return fmt.Errorf("%w: install run id is required", shared.ErrInvalidArgument)
	}
	if i.Name == "" {
		return fmt.Errorf("%w: install name is required", shared.ErrInvalidArgument)
	}
	switch i.Status {
	case InstallStatusInstalled, InstallStatusFailed:
	default:
		return fmt.Errorf("%w: unknown install status %q", shared.ErrInvalidArgument, i.Status)
	}
	return nil
}
