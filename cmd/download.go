package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/spotenv/internal/services"
	"github.com/desertthunder/spotenv/internal/shared"
	"github.com/urfave/cli/v3"
)

// identifierLine is one identifier and where it came from, for error messages.
type identifierLine struct {
	source string
	value  string
}

// readIdentifierFile returns the identifiers listed in path, skipping blank lines and # comments.
func readIdentifierFile(path string) ([]identifierLine, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open identifier file: %w", err)
	}
	defer file.Close()

	var lines []identifierLine
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, identifierLine{source: fmt.Sprintf("%s:%d", path, lineNo), value: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read identifier file: %w", err)
	}
	return lines, nil
}

// Download runs the wrapped downloader from the environment once per identifier.
//
// Identifiers come from the arguments and the --file list. They and the format are
// validated before any process starts.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	var lines []identifierLine
	for _, arg := range cmd.Args().Slice() {
		lines = append(lines, identifierLine{source: "argument", value: arg})
	}
	if path := cmd.String("file"); path != "" {
		fromFile, err := readIdentifierFile(path)
		if err != nil {
			return err
		}
		lines = append(lines, fromFile...)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one Spotify URL or URI, or --file", shared.ErrMissingArgument)
	}

	var ids []services.Identifier
	var errs []error
	for _, line := range lines {
		id, err := services.ParseIdentifier(line.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", line.source, err))
			continue
		}
		ids = append(ids, id)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	format := cmd.String("format")
	if format == "" {
		format = r.config.Download.Format
	}
	f, err := services.ParseFormat(format)
	if err != nil {
		return err
	}

	output := cmd.String("output")
	if output == "" {
		output = r.config.Download.OutputDir
	}

	interval, err := r.config.Download.IntervalDuration()
	if err != nil {
		return err
	}

	_, act, err := r.activate(cmd)
	if err != nil {
		return err
	}
	defer act.Deactivate()

	tool := act.Executable(r.config.Download.Tool)
	if _, err := os.Stat(tool); err != nil {
		return fmt.Errorf("%w: %s (add it to the manifest and run `spotenv bootstrap`)", shared.ErrToolNotInstalled, tool)
	}

	if err := os.MkdirAll(output, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	d := services.NewDownloader(r.exec(), interval, r.logger)
	results, err := d.Download(ctx, services.DownloadRequest{
		Tool:        tool,
		Env:         act.Environ(),
		Identifiers: ids,
		Format:      f,
		OutputDir:   output,
	})

	completed := 0
	for _, res := range results {
		if res.Err != nil {
			r.writePlain("✗ %s: %v\n", res.Identifier, res.Err)
		} else {
			completed++
			r.writePlain("✓ %s\n", res.Identifier)
		}
	}
	r.writePlain("Completed: %d/%d\n", completed, len(ids))
	return err
}

// Provision installs the standalone binaries selected by flags or the [tools] config section.
func (r *Runner) Provision(ctx context.Context, cmd *cli.Command) error {
	opts := r.config.Tools
	if cmd.IsSet("ytdlp") || cmd.IsSet("ffmpeg") || cmd.IsSet("ffprobe") {
		opts = shared.ToolsConfig{
			YtDlp:   cmd.Bool("ytdlp"),
			FFmpeg:  cmd.Bool("ffmpeg"),
			FFprobe: cmd.Bool("ffprobe"),
		}
	}
	if !opts.YtDlp && !opts.FFmpeg && !opts.FFprobe {
		return fmt.Errorf("%w: enable a tool with --ytdlp, --ffmpeg or --ffprobe, or in [tools]", shared.ErrMissingArgument)
	}

	provisioned, err := services.Provision(ctx, opts, r.logger)

	if cmd.Bool("json") {
		if jErr := r.writeJSON(provisioned, true); jErr != nil {
			return jErr
		}
		return err
	}

	for _, p := range provisioned {
		source := "installed"
		if p.FromCache {
			source = "cached"
		}
		r.writePlain("✓ %s %s (%s)\n  %s\n", p.Name, p.Version, source, p.Executable)
	}
	return err
}
