package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/platform"
	"github.com/desertthunder/spotenv/internal/shared"
	tu "github.com/desertthunder/spotenv/internal/testing"
)

type memRecorder struct {
	mu       sync.Mutex
	envs     map[string]*models.EnvironmentRecord
	runs     map[string]*models.RunRecord
	installs []*models.InstallRecord
	err      error
}

func newMemRecorder() *memRecorder {
	return &memRecorder{envs: map[string]*models.EnvironmentRecord{}, runs: map[string]*models.RunRecord{}}
}

func (r *memRecorder) SaveEnvironment(_ context.Context, rec *models.EnvironmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if existing, ok := r.envs[rec.Path]; ok {
		rec.ID = existing.ID
	} else if rec.ID == "" {
		rec.ID = shared.GenerateID()
	}
	c := *rec
	r.envs[rec.Path] = &c
	return nil
}

func (r *memRecorder) SaveRun(_ context.Context, run *models.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	c := *run
	r.runs[run.ID] = &c
	return nil
}

func (r *memRecorder) SaveInstall(_ context.Context, install *models.InstallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	c := *install
	r.installs = append(r.installs, &c)
	return nil
}

func newTestBootstrapper(t *testing.T, p platform.Platform, host *tu.PythonHost, rec Recorder) *Bootstrapper {
	t.Helper()
	b, err := New(Options{
		Platform: p,
		Executor: host.Executor(),
		Recorder: rec,
		Logger:   shared.NewLogger(&strings.Builder{}),
		Environ:  func() []string { return []string{"PATH=/usr/bin", "PYTHONHOME=/opt/python"} },
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return b
}

func mustManifest(t *testing.T, names ...string) *models.Manifest {
	t.Helper()
	deps := make([]models.Dependency, 0, len(names))
	for _, n := range names {
		name, version, _ := strings.Cut(n, "==")
		deps = append(deps, models.Dependency{Name: name, Version: version})
	}
	m, err := models.NewManifest(deps...)
	if err != nil {
		t.Fatalf("NewManifest() failed: %v", err)
	}
	return m
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument without platform, got %v", err)
	}

	b, err := New(Options{Platform: platform.Posix{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.opts.PythonConstraint != DefaultPythonConstraint {
		t.Errorf("expected default constraint, got %q", b.opts.PythonConstraint)
	}
	if b.opts.Installer == nil || b.opts.Executor == nil {
		t.Error("expected default executor and installer")
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	for _, name := range platform.Names() {
		p, _ := platform.Lookup(name)

		t.Run(name+"/empty manifest", func(t *testing.T) {
			host := tu.NewPythonHost(p)
			b := newTestBootstrapper(t, p, host, nil)
			path := filepath.Join(t.TempDir(), "env")

			res, err := b.Bootstrap(ctx, path, mustManifest(t), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.State != StateInstalled {
				t.Errorf("expected state installed, got %s", res.State)
			}
			if !res.Activation.Active() {
				t.Error("expected a live activation")
			}
			if len(res.Installs) != 0 || len(host.Installed()) != 0 {
				t.Errorf("expected no installs, got %v", host.Installed())
			}
			tu.AssertFileExists(t, filepath.Join(path, "pyvenv.cfg"))
			tu.AssertFileExists(t, p.Executable(path, "python"))
		})

		t.Run(name+"/installs every entry in order", func(t *testing.T) {
			host := tu.NewPythonHost(p)
			b := newTestBootstrapper(t, p, host, nil)
			path := filepath.Join(t.TempDir(), "env")

			res, err := b.Bootstrap(ctx, path, mustManifest(t, "spotdl", "yt-dlp==2024.8.6", "requests"), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := []string{"spotdl", "yt-dlp", "requests"}
			if !slices.Equal(host.Installed(), want) {
				t.Errorf("expected %v, got %v", want, host.Installed())
			}
			if len(res.Installs) != 3 {
				t.Errorf("expected 3 install results, got %d", len(res.Installs))
			}

			missing, err := b.Verify(ctx, res.Activation, mustManifest(t, "spotdl", "yt-dlp==2024.8.6", "requests"))
			if err != nil {
				t.Fatalf("Verify() failed: %v", err)
			}
			if len(missing) != 0 {
				t.Errorf("expected nothing missing, got %v", missing)
			}
		})
	}

	t.Run("requests on posix-shell", func(t *testing.T) {
		p := platform.Posix{}
		host := tu.NewPythonHost(p)
		b := newTestBootstrapper(t, p, host, nil)
		path := filepath.Join(t.TempDir(), "venv")

		res, err := b.Bootstrap(ctx, path, mustManifest(t, "requests"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertDirExists(t, path)
		if !host.Has("requests") {
			t.Error("expected requests installed")
		}
		if res.Environment.Path != path {
			t.Errorf("expected environment at %s, got %s", path, res.Environment.Path)
		}
		wantHistory := []State{StateNotCreated, StateCreated, StateActivated, StateInstalled}
		if !slices.Equal(res.History, wantHistory) {
			t.Errorf("expected history %v, got %v", wantHistory, res.History)
		}
	})

	t.Run("first failure stops the run", func(t *testing.T) {
		p := platform.Posix{}
		host := tu.NewPythonHost(p)
		host.Broken["not-a-real-package"] = true
		rec := newMemRecorder()
		b := newTestBootstrapper(t, p, host, rec)

		m := mustManifest(t, "spotdl", "not-a-real-package", "yt-dlp")
		res, err := b.Bootstrap(ctx, filepath.Join(t.TempDir(), "env"), m, nil)

		var installErr *shared.DependencyInstallError
		if !errors.As(err, &installErr) {
			t.Fatalf("expected DependencyInstallError, got %v", err)
		}
		if installErr.Name != "not-a-real-package" {
			t.Errorf("expected failing name in error, got %q", installErr.Name)
		}
		if !host.Has("spotdl") {
			t.Error("expected earlier install to remain")
		}
		if host.Has("yt-dlp") {
			t.Error("expected later entry not to be attempted")
		}
		if n := len(b.opts.Executor.(*tu.FakeExecutor).CallsWith("install")); n != 2 {
			t.Errorf("expected 2 install attempts, got %d", n)
		}
		if res.State != StateFailed {
			t.Errorf("expected failed state, got %s", res.State)
		}
		if len(res.Installs) != 2 || res.Installs[1].Status != models.InstallStatusFailed {
			t.Errorf("unexpected install results %+v", res.Installs)
		}

		if len(rec.installs) != 2 {
			t.Fatalf("expected 2 recorded installs, got %d", len(rec.installs))
		}
		run := rec.runs[res.RunID]
		if run == nil || run.State != string(StateFailed) || run.ErrorMessage == "" {
			t.Errorf("unexpected recorded run %+v", run)
		}
	})

	t.Run("existing environment is reused", func(t *testing.T) {
		p := platform.Posix{}
		host := tu.NewPythonHost(p)
		b := newTestBootstrapper(t, p, host, nil)
		path := filepath.Join(t.TempDir(), "env")

		if _, err := b.Bootstrap(ctx, path, mustManifest(t, "spotdl"), nil); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		res, err := b.Bootstrap(ctx, path, mustManifest(t, "spotdl"), nil)
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if host.Venvs() != 1 {
			t.Errorf("expected environment created once, got %d", host.Venvs())
		}
		if !res.Environment.Reused {
			t.Error("expected second run to reuse the environment")
		}
		if !strings.Contains(res.Environment.Interpreter, "3.12.1") {
			t.Errorf("expected interpreter from pyvenv.cfg, got %q", res.Environment.Interpreter)
		}
	})

	t.Run("creation failure", func(t *testing.T) {
		p := platform.Posix{}
		host := tu.NewPythonHost(p)
		rec := newMemRecorder()
		b := newTestBootstrapper(t, p, host, rec)

		path := t.TempDir()
		if err := os.WriteFile(filepath.Join(path, "notes.txt"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		res, err := b.Bootstrap(ctx, path, mustManifest(t, "spotdl"), nil)
		var createErr *shared.EnvironmentCreationError
		if !errors.As(err, &createErr) {
			t.Fatalf("expected EnvironmentCreationError, got %v", err)
		}
		if res.State != StateFailed || res.Activation != nil {
			t.Errorf("unexpected result state %s", res.State)
		}
		if len(rec.installs) != 0 || len(rec.envs) != 0 {
			t.Error("expected no environment or install records")
		}
		if run := rec.runs[res.RunID]; run == nil || run.EnvironmentID != "" {
			t.Errorf("expected run without environment, got %+v", run)
		}
	})

	t.Run("recorder errors do not abort", func(t *testing.T) {
		p := platform.Posix{}
		host := tu.NewPythonHost(p)
		rec := newMemRecorder()
		rec.err = errors.New("disk full")
		b := newTestBootstrapper(t, p, host, rec)

		if _, err := b.Bootstrap(ctx, filepath.Join(t.TempDir(), "env"), mustManifest(t, "spotdl"), nil); err != nil {
			t.Errorf("expected success despite recorder errors, got %v", err)
		}
	})

	t.Run("records a successful run", func(t *testing.T) {
		p := platform.Windows{}
		host := tu.NewPythonHost(p)
		rec := newMemRecorder()
		b := newTestBootstrapper(t, p, host, rec)

		res, err := b.Bootstrap(ctx, filepath.Join(t.TempDir(), "env"), mustManifest(t, "spotdl", "yt-dlp"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		env := rec.envs[res.Environment.Path]
		if env == nil || env.State != string(StateInstalled) || env.Platform != platform.WindowsShell {
			t.Errorf("unexpected environment record %+v", env)
		}
		run := rec.runs[res.RunID]
		if run == nil || run.EnvironmentID != env.ID || run.State != string(StateInstalled) {
			t.Errorf("unexpected run record %+v", run)
		}
		if len(rec.installs) != 2 || rec.installs[1].Position != 2 {
			t.Errorf("unexpected install records %+v", rec.installs)
		}
	})
}

func TestBootstrapProgress(t *testing.T) {
	ctx := context.Background()
	p := platform.Posix{}

	t.Run("buffered channel receives every phase", func(t *testing.T) {
		host := tu.NewPythonHost(p)
		b := newTestBootstrapper(t, p, host, nil)
		progress := make(chan ProgressUpdate, 32)

		if _, err := b.Bootstrap(ctx, filepath.Join(t.TempDir(), "env"), mustManifest(t, "spotdl", "yt-dlp"), progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			if len(phases) == 0 || phases[len(phases)-1] != u.Phase {
				phases = append(phases, u.Phase)
			}
		}
		want := []Phase{Creating, Activating, Installing, Complete}
		if !slices.Equal(phases, want) {
			t.Errorf("expected phases %v, got %v", want, phases)
		}
	})

	t.Run("unread channel never blocks", func(t *testing.T) {
		host := tu.NewPythonHost(p)
		b := newTestBootstrapper(t, p, host, nil)
		progress := make(chan ProgressUpdate)

		if _, err := b.Bootstrap(ctx, filepath.Join(t.TempDir(), "env"), mustManifest(t, "spotdl"), progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("failure is reported", func(t *testing.T) {
		host := tu.NewPythonHost(p)
		host.Broken["spotdl"] = true
		b := newTestBootstrapper(t, p, host, nil)
		progress := make(chan ProgressUpdate, 32)

		_, _ = b.Bootstrap(ctx, filepath.Join(t.TempDir(), "env"), mustManifest(t, "spotdl"), progress)
		close(progress)

		var last ProgressUpdate
		for u := range progress {
			last = u
		}
		if last.Phase != Failed {
			t.Errorf("expected final phase failed, got %s", last.Phase)
		}
	})
}

func TestCreateEnvironment(t *testing.T) {
	ctx := context.Background()
	p := platform.Posix{}

	t.Run("empty existing directory", func(t *testing.T) {
		host := tu.NewPythonHost(p)
		b := newTestBootstrapper(t, p, host, nil)
		path := t.TempDir()

		env, err := b.CreateEnvironment(ctx, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if env.Reused || !strings.Contains(env.Interpreter, "3.12.1") {
			t.Errorf("unexpected environment %+v", env)
		}
	})

	t.Run("reused environment reads pyvenv.cfg", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  string
			want string
		}{
			{"venv", "home = /usr/bin\nversion = 3.11.4\n", "3.11.4"},
			{"virtualenv", "home = /usr/bin\nversion_info = 3.10.12.final.0\n", "3.10.12"},
			{"no version", "home = /usr/bin\n", ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				host := tu.NewPythonHost(p)
				b := newTestBootstrapper(t, p, host, nil)
				path := t.TempDir()
				python := p.Executable(path, "python")
				if err := os.MkdirAll(filepath.Dir(python), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(python, []byte("#!/bin/sh\n"), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(filepath.Join(path, "pyvenv.cfg"), []byte(tt.cfg), 0o644); err != nil {
					t.Fatal(err)
				}

				env, err := b.CreateEnvironment(ctx, path)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !env.Reused {
					t.Error("expected environment to be reused")
				}
				if tt.want == "" {
					if env.Interpreter != "" {
						t.Errorf("expected no interpreter, got %q", env.Interpreter)
					}
					return
				}
				if !strings.Contains(env.Interpreter, tt.want) || !strings.HasPrefix(env.Interpreter, python) {
					t.Errorf("expected %s (%s), got %q", python, tt.want, env.Interpreter)
				}
			})
		}
	})

	tests := []struct {
		name    string
		setup   func(t *testing.T, host *tu.PythonHost) string
		wantErr error
	}{
		{
			name: "path is a file",
			setup: func(t *testing.T, _ *tu.PythonHost) string {
				path := filepath.Join(t.TempDir(), "file")
				if err := os.WriteFile(path, nil, 0o644); err != nil {
					t.Fatal(err)
				}
				return path
			},
			wantErr: shared.ErrPathNotEmpty,
		},
		{
			name: "broken environment",
			setup: func(t *testing.T, _ *tu.PythonHost) string {
				path := t.TempDir()
				if err := os.WriteFile(filepath.Join(path, "pyvenv.cfg"), nil, 0o644); err != nil {
					t.Fatal(err)
				}
				return path
			},
			wantErr: shared.ErrEnvironmentBroken,
		},
		{
			name: "interpreter too old",
			setup: func(t *testing.T, host *tu.PythonHost) string {
				host.Version = "Python 3.7.17"
				return filepath.Join(t.TempDir(), "env")
			},
			wantErr: shared.ErrInterpreterVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := tu.NewPythonHost(p)
			path := tt.setup(t, host)
			b := newTestBootstrapper(t, p, host, nil)

			_, err := b.CreateEnvironment(ctx, path)
			var createErr *shared.EnvironmentCreationError
			if !errors.As(err, &createErr) {
				t.Fatalf("expected EnvironmentCreationError, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if host.Venvs() != 0 {
				t.Error("expected venv not to run")
			}
		})
	}

	t.Run("no interpreter", func(t *testing.T) {
		host := tu.NewPythonHost(p)
		b := newTestBootstrapper(t, p, host, nil)
		b.opts.Executor = &tu.FakeExecutor{}

		_, err := b.CreateEnvironment(ctx, filepath.Join(t.TempDir(), "env"))
		if !errors.Is(err, shared.ErrInterpreterNotFound) {
			t.Errorf("expected ErrInterpreterNotFound, got %v", err)
		}
	})

	t.Run("unwritable parent", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions are not enforced for root")
		}
		parent := t.TempDir()
		if err := os.Chmod(parent, 0o500); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(parent, 0o755) })

		host := tu.NewPythonHost(p)
		b := newTestBootstrapper(t, p, host, nil)
		_, err := b.CreateEnvironment(ctx, filepath.Join(parent, "env"))
		if !errors.Is(err, shared.ErrPathNotWritable) {
			t.Errorf("expected ErrPathNotWritable, got %v", err)
		}
	})

	t.Run("explicit interpreter", func(t *testing.T) {
		host := tu.NewPythonHost(p)
		exec := host.Executor()
		exec.Paths["/opt/python3.11"] = "/opt/python3.11"
		b := newTestBootstrapper(t, p, host, nil)
		b.opts.Executor = exec
		b.opts.Python = "/opt/python3.11"

		if _, err := b.CreateEnvironment(ctx, filepath.Join(t.TempDir(), "env")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls := exec.CallsWith("venv"); len(calls) != 1 || calls[0].Name != "/opt/python3.11" {
			t.Errorf("expected venv with explicit interpreter, got %+v", calls)
		}
	})
}

func TestActivation(t *testing.T) {
	ctx := context.Background()
	p := platform.Posix{}
	host := tu.NewPythonHost(p)
	b := newTestBootstrapper(t, p, host, nil)

	env, err := b.CreateEnvironment(ctx, filepath.Join(t.TempDir(), "env"))
	if err != nil {
		t.Fatalf("CreateEnvironment() failed: %v", err)
	}

	act, err := b.Activate(env)
	if err != nil {
		t.Fatalf("Activate() failed: %v", err)
	}

	environ := act.Environ()
	if !slices.Contains(environ, "VIRTUAL_ENV="+env.Path) {
		t.Errorf("expected VIRTUAL_ENV in %v", environ)
	}
	if !slices.Contains(environ, "PATH="+filepath.Join(env.Path, "bin")+":/usr/bin") {
		t.Errorf("expected env bin dir first on PATH in %v", environ)
	}
	for _, kv := range environ {
		if strings.HasPrefix(kv, "PYTHONHOME=") {
			t.Errorf("expected PYTHONHOME removed, got %s", kv)
		}
	}

	environ[0] = "MUTATED=1"
	if act.Environ()[0] == "MUTATED=1" {
		t.Error("expected Environ to return a copy")
	}
	if act.Python() != filepath.Join(env.Path, "bin", "python") {
		t.Errorf("unexpected python %s", act.Python())
	}

	act.Deactivate()
	act.Deactivate()
	if act.Active() {
		t.Error("expected inactive handle")
	}
	if err := b.Install(ctx, act, mustManifest(t, "spotdl")); !errors.Is(err, shared.ErrNotActivated) {
		t.Errorf("expected ErrNotActivated, got %v", err)
	}
	if _, err := b.Verify(ctx, act, mustManifest(t, "spotdl")); !errors.Is(err, shared.ErrNotActivated) {
		t.Errorf("expected ErrNotActivated from Verify, got %v", err)
	}
	if err := b.Install(ctx, nil, mustManifest(t)); !errors.Is(err, shared.ErrNotActivated) {
		t.Errorf("expected ErrNotActivated for nil handle, got %v", err)
	}

	if _, err := b.Activate(&Environment{Path: t.TempDir()}); !errors.Is(err, shared.ErrEnvironmentBroken) {
		t.Errorf("expected ErrEnvironmentBroken, got %v", err)
	}
}

func TestVerifyReportsMissing(t *testing.T) {
	ctx := context.Background()
	p := platform.Posix{}
	host := tu.NewPythonHost(p)
	b := newTestBootstrapper(t, p, host, nil)

	res, err := b.Bootstrap(ctx, filepath.Join(t.TempDir(), "env"), mustManifest(t, "spotdl==4.2.5"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing, err := b.Verify(ctx, res.Activation, mustManifest(t, "SpotDL==4.2.5", "yt_dlp", "spotdl-extra"))
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !slices.Equal(missing, []string{"yt_dlp", "spotdl-extra"}) {
		t.Errorf("unexpected missing %v", missing)
	}

	missing, _ = b.Verify(ctx, res.Activation, mustManifest(t, "spotdl==4.3.0"))
	if !slices.Equal(missing, []string{"spotdl"}) {
		t.Errorf("expected version mismatch reported, got %v", missing)
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateNotCreated, StateCreated, true},
		{StateNotCreated, StateActivated, false},
		{StateCreated, StateActivated, true},
		{StateActivated, StateInstalled, true},
		{StateActivated, StateFailed, true},
		{StateInstalled, StateFailed, false},
		{StateFailed, StateCreated, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.ok {
				t.Errorf("expected %v, got %v", tt.ok, got)
			}
		})
	}

	m := newMachine()
	if err := m.to(StateInstalled); !errors.Is(err, shared.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if !StateFailed.Terminal() || StateActivated.Terminal() {
		t.Error("unexpected Terminal result")
	}
}
