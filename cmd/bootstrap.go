package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/desertthunder/spotenv/internal/bootstrap"
	"github.com/desertthunder/spotenv/internal/formatter"
	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/services"
	"github.com/desertthunder/spotenv/internal/shared"
	"github.com/urfave/cli/v3"
)

// Bootstrap creates the environment, activates it and installs the resolved manifest.
//
// The run is recorded in the ledger when one is configured. Any failure exits non-zero.
func (r *Runner) Bootstrap(ctx context.Context, cmd *cli.Command) error {
	p, err := r.platform(cmd)
	if err != nil {
		return err
	}

	m, source, err := r.manifest(cmd)
	if err != nil {
		return err
	}

	var reportFormat formatter.Format
	if f := cmd.String("report-format"); f != "" {
		if reportFormat, err = formatter.ParseFormat(f); err != nil {
			return err
		}
	}

	tui := cmd.Bool("tui")
	if tui {
		if err := r.redirectLogs(); err != nil {
			return err
		}
	}

	ledger, closeLedger, err := r.openLedger()
	if err != nil {
		return err
	}
	defer closeLedger()

	var recorder bootstrap.Recorder
	if ledger != nil {
		recorder = ledger
	}

	b, err := r.bootstrapper(cmd, p, source, recorder)
	if err != nil {
		return err
	}

	path := r.envPath(cmd)
	r.logger.Info("bootstrapping", "path", path, "platform", p.Name(), "packages", m.Len(), "manifest", source)

	var res *bootstrap.Result
	var runErr error
	if tui {
		res, runErr = r.runTUI(ctx, b, path, m, cmd.Bool("yes"))
	} else {
		res, runErr = r.runPlain(ctx, b, path, m)
	}
	if res == nil {
		return runErr
	}

	report := formatter.NewReport(res, m)
	if out := cmd.String("report"); out != "" {
		if err := formatter.WriteReport(report, reportFormat, out); err != nil {
			return err
		}
		r.logger.Info("report written", "path", out)
	}

	if !tui {
		text, err := formatter.ToText(report)
		if err != nil {
			return err
		}
		r.writePlain("%s", text)
	}
	return runErr
}

// runPlain bootstraps while printing progress lines to the output.
func (r *Runner) runPlain(ctx context.Context, b *bootstrap.Bootstrapper, path string, m *models.Manifest) (*bootstrap.Result, error) {
	progress := make(chan bootstrap.ProgressUpdate, 64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	res, err := b.Bootstrap(ctx, path, m, progress)
	close(progress)
	wg.Wait()
	return res, err
}

// Verify reports manifest entries missing from an existing environment.
func (r *Runner) Verify(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manifest(cmd)
	if err != nil {
		return err
	}

	b, act, err := r.activate(cmd)
	if err != nil {
		return err
	}
	defer act.Deactivate()

	missing, err := b.Verify(ctx, act, m)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(map[string]any{
			"path":     act.Environment().Path,
			"packages": m.Names(),
			"missing":  append([]string{}, missing...),
		}, true); err != nil {
			return err
		}
	} else if len(missing) == 0 {
		r.writePlain("✓ %d packages installed in %s\n", m.Len(), act.Environment().Path)
	} else {
		for _, name := range missing {
			r.writePlain("✗ %s\n", name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}

type checkStatus string

const (
	checkOK   checkStatus = "[ OK ]"
	checkMiss checkStatus = "[MISS]"
	checkFail checkStatus = "[FAIL]"
)

type check struct {
	name   string
	status checkStatus
	detail string
}

// Doctor checks the host interpreter, the environment, the wrapped tools and the ledger.
//
// Missing pieces are reported; only failed checks make the command exit non-zero.
func (r *Runner) Doctor(ctx context.Context, cmd *cli.Command) error {
	p, err := r.platform(cmd)
	if err != nil {
		return err
	}
	b, err := r.bootstrapper(cmd, p, "", nil)
	if err != nil {
		return err
	}

	var checks []check

	if interp, err := b.Interpreter(ctx); err != nil {
		checks = append(checks, check{"python", checkFail, err.Error()})
	} else {
		checks = append(checks, check{"python", checkOK, interp.String()})
	}

	path, err := filepath.Abs(r.envPath(cmd))
	if err != nil {
		return err
	}

	if !b.IsEnvironment(path) {
		checks = append(checks, check{"environment", checkMiss, path})
	} else {
		checks = append(checks, check{"environment", checkOK, path})
		act, err := b.Activate(&bootstrap.Environment{Path: path, Platform: p.Name()})
		if err != nil {
			return err
		}
		for _, tool := range []string{r.config.Download.Tool, "yt-dlp"} {
			v, err := services.ToolVersion(ctx, r.exec(), act.Executable(tool), act.Environ())
			if err != nil {
				checks = append(checks, check{tool, checkMiss, err.Error()})
				continue
			}
			checks = append(checks, check{tool, checkOK, v})
		}
		act.Deactivate()
	}

	if ffmpeg, err := r.exec().LookPath("ffmpeg"); err != nil {
		checks = append(checks, check{"ffmpeg", checkMiss, "not on PATH"})
	} else {
		checks = append(checks, check{"ffmpeg", checkOK, ffmpeg})
	}

	checks = append(checks, r.checkLedger())

	r.writePlainHeader("spotenv doctor (" + p.Name() + ")")
	failed := 0
	for _, c := range checks {
		r.writePlain("%s %-12s %s\n", c.status, c.name, c.detail)
		if c.status == checkFail {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d doctor checks failed", failed)
	}
	return nil
}

func (r *Runner) checkLedger() check {
	if r.config.Database.Path == "" {
		return check{"ledger", checkMiss, "disabled"}
	}

	db, err := shared.OpenLedger(r.config.Database)
	if err != nil {
		return check{"ledger", checkFail, err.Error()}
	}
	defer db.Close()

	v, err := shared.CurrentVersion(db)
	if err != nil {
		return check{"ledger", checkFail, err.Error()}
	}
	return check{"ledger", checkOK, fmt.Sprintf("%s (schema v%d)", r.config.Database.Path, v)}
}

// Manifest prints the manifest a bootstrap would install.
func (r *Runner) Manifest(ctx context.Context, cmd *cli.Command) error {
	m, source, err := r.manifest(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"source":       source,
			"dependencies": m.Dependencies(),
		}, true)
	}

	r.writePlainHeader(fmt.Sprintf("Manifest (%s, %d packages)", source, m.Len()))
	for _, dep := range m.Dependencies() {
		r.writePlain("  %s\n", dep.Spec())
	}
	return nil
}
