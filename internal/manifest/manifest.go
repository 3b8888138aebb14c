// Package manifest resolves the Dependency Manifest from a requirements file, the config, or the built-in default.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/shared"
)

// Source names where a manifest was read from.
type Source string

const (
	SourceFile    Source = "file"
	SourceConfig  Source = "config"
	SourceDefault Source = "default"
)

// Default returns the packages the wrapped downloader needs.
func Default() *models.Manifest {
	m, err := models.NewManifest(
		models.Dependency{Name: "spotdl"},
		models.Dependency{Name: "yt-dlp"},
	)
	if err != nil {
		panic(fmt.Sprintf("invalid default manifest: %v", err))
	}
	return m
}

// Parse reads a requirements-style manifest.
//
// Each non-blank line is `name` or `name==version`; `#` starts a comment.
// Any other specifier is rejected.
func Parse(r io.Reader) (*models.Manifest, error) {
	var deps []models.Dependency

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		dep, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", shared.ErrInvalidManifest, lineNo, err)
		}
		deps = append(deps, dep)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := models.NewManifest(deps...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidManifest, err)
	}
	return m, nil
}

func parseLine(line string) (models.Dependency, error) {
	name, version, pinned := strings.Cut(line, "==")
	dep := models.Dependency{Name: strings.TrimSpace(name)}
	if pinned {
		dep.Version = strings.TrimSpace(version)
		if dep.Version == "" {
			return dep, fmt.Errorf("empty version for %s", dep.Name)
		}
	}

	if strings.ContainsAny(dep.Name, "<>=!~;[@ ") {
		return dep, fmt.Errorf("unsupported requirement %q: only name or name==version", line)
	}
	return dep, dep.Validate()
}

// LoadFile parses the manifest file at path.
func LoadFile(path string) (*models.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// FromConfig builds a manifest from config entries.
func FromConfig(packages []shared.PackageConfig) (*models.Manifest, error) {
	deps := make([]models.Dependency, 0, len(packages))
	for _, p := range packages {
		deps = append(deps, models.Dependency{Name: p.Name, Version: p.Version})
	}

	m, err := models.NewManifest(deps...)
	if err != nil {
		return nil, fmt.Errorf("%w: config: %w", shared.ErrInvalidManifest, err)
	}
	return m, nil
}

// Resolve picks the manifest for a bootstrap: the file at path when given,
// then cfg.File, then cfg.Packages, then [Default].
func Resolve(path string, cfg shared.ManifestConfig) (*models.Manifest, Source, error) {
	if path == "" {
		path = cfg.File
	}

	if path != "" {
		m, err := LoadFile(path)
		return m, SourceFile, err
	}

	if len(cfg.Packages) > 0 {
		m, err := FromConfig(cfg.Packages)
		return m, SourceConfig, err
	}

	return Default(), SourceDefault, nil
}
