// package formatter renders bootstrap reports as plain text, Markdown, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/spotenv/internal/bootstrap"
	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/shared"
)

// Format is a report output format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// StatusSkipped marks manifest entries not attempted because an earlier one failed.
const StatusSkipped = "skipped"

// ParseFormat accepts a format name or its common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: report format %q (expected text, md, csv or json)", shared.ErrInvalidArgument, s)
	}
}

// FormatFromPath picks a format from a file extension, defaulting to text.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatText
	}
	return f
}

// PackageStatus is one manifest entry in a [Report].
type PackageStatus struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Report summarises a bootstrap run.
type Report struct {
	RunID          string          `json:"run_id"`
	Path           string          `json:"path"`
	Platform       string          `json:"platform"`
	Interpreter    string          `json:"interpreter,omitempty"`
	Reused         bool            `json:"reused"`
	ManifestSource string          `json:"manifest_source,omitempty"`
	State          string          `json:"state"`
	Activate       string          `json:"activate,omitempty"`
	Packages       []PackageStatus `json:"packages"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Duration       string          `json:"duration"`
	Error          string          `json:"error,omitempty"`
}

// Succeeded reports whether the run ended installed.
func (r *Report) Succeeded() bool {
	return r.State == string(bootstrap.StateInstalled)
}

// NewReport builds a [Report] from res. Entries of m that were never attempted are marked skipped.
func NewReport(res *bootstrap.Result, m *models.Manifest) *Report {
	r := &Report{
		RunID:          res.RunID,
		Path:           res.Path,
		Platform:       res.Platform,
		ManifestSource: res.ManifestSource,
		State:          string(res.State),
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		Duration:       res.Duration().Round(time.Millisecond).String(),
		Packages:       []PackageStatus{},
	}
	if res.Environment != nil {
		r.Interpreter = res.Environment.Interpreter
		r.Reused = res.Environment.Reused
	}
	if res.Activation != nil {
		r.Activate = res.Activation.Hint()
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}

	for _, install := range res.Installs {
		p := PackageStatus{
			Name:    install.Dependency.Name,
			Version: install.Dependency.Version,
			Status:  string(install.Status),
		}
		if install.Err != nil {
			p.Error = install.Err.Error()
		}
		r.Packages = append(r.Packages, p)
	}
	if deps := m.Dependencies(); len(deps) > len(res.Installs) {
		for _, dep := range deps[len(res.Installs):] {
			r.Packages = append(r.Packages, PackageStatus{Name: dep.Name, Version: dep.Version, Status: StatusSkipped})
		}
	}
	return r
}

// ToText renders r as plain text
func ToText(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Environment: %s\n", r.Path)
	fmt.Fprintf(&buf, "Platform: %s\n", r.Platform)
	if r.Interpreter != "" {
		fmt.Fprintf(&buf, "Interpreter: %s\n", r.Interpreter)
	}
	fmt.Fprintf(&buf, "State: %s\n", r.State)
	fmt.Fprintf(&buf, "Duration: %s\n", r.Duration)
	if r.Error != "" {
		fmt.Fprintf(&buf, "Error: %s\n", r.Error)
	}
	fmt.Fprintf(&buf, "Packages: %d\n\n", len(r.Packages))

	for i, p := range r.Packages {
		fmt.Fprintf(&buf, "%d. [%s] %s\n", i+1, p.Status, spec(p))
		if p.Error != "" {
			fmt.Fprintf(&buf, "   %s\n", p.Error)
		}
	}

	if r.Activate != "" && r.Succeeded() {
		fmt.Fprintf(&buf, "\nActivate with: %s\n", r.Activate)
	}
	return buf.Bytes(), nil
}

// ToMarkdown renders r as a Markdown document with a package table
func ToMarkdown(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Bootstrap %s\n\n", r.State)
	fmt.Fprintf(&buf, "**Environment**: `%s`\n\n", r.Path)
	fmt.Fprintf(&buf, "**Platform**: %s\n\n", r.Platform)
	if r.Interpreter != "" {
		fmt.Fprintf(&buf, "**Interpreter**: %s\n\n", r.Interpreter)
	}
	if r.ManifestSource != "" {
		fmt.Fprintf(&buf, "**Manifest**: %s\n\n", r.ManifestSource)
	}
	fmt.Fprintf(&buf, "**Duration**: %s\n\n", r.Duration)
	if r.Error != "" {
		fmt.Fprintf(&buf, "**Error**: %s\n\n", r.Error)
	}

	buf.WriteString("## Packages\n\n")
	buf.WriteString("| # | Package | Status |\n|---|---|---|\n")
	for i, p := range r.Packages {
		fmt.Fprintf(&buf, "| %d | %s | %s |\n", i+1, strings.ReplaceAll(spec(p), "|", "\\|"), p.Status)
	}

	if r.Activate != "" && r.Succeeded() {
		fmt.Fprintf(&buf, "\nActivate with `%s`\n", r.Activate)
	}
	return buf.Bytes(), nil
}

// ToCSV renders r with columns: Position, Name, Version, Status, Error
func ToCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Name", "Version", "Status", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, p := range r.Packages {
		record := []string{fmt.Sprint(i + 1), p.Name, p.Version, p.Status, p.Error}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ToJSON renders r as indented JSON
func ToJSON(r *Report) ([]byte, error) {
	return shared.MarshalJSON(r, true)
}

// Render renders r in format.
func Render(r *Report, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return ToText(r)
	case FormatMarkdown:
		return ToMarkdown(r)
	case FormatCSV:
		return ToCSV(r)
	case FormatJSON:
		return ToJSON(r)
	default:
		return nil, fmt.Errorf("%w: report format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteReport renders r and writes it to path, creating parent directories.
//
// An empty format is inferred from the file extension.
func WriteReport(r *Report, format Format, path string) error {
	if format == "" {
		format = FormatFromPath(path)
	}

	data, err := Render(r, format)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func spec(p PackageStatus) string {
	return models.Dependency{Name: p.Name, Version: p.Version}.Spec()
}
