// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/platform"
	"github.com/desertthunder/spotenv/internal/services"
	"github.com/desertthunder/spotenv/internal/shared"
)

// FakeExecutor is a test double for [services.Executor].
//
// LookPath resolves names through Paths. Run records every call and delegates to Handler;
// a nil Handler returns an empty successful [services.Result].
type FakeExecutor struct {
	Paths   map[string]string
	Handler func(ctx context.Context, cmd services.Command) (*services.Result, error)

	mu    sync.Mutex
	calls []services.Command
}

func (f *FakeExecutor) LookPath(name string) (string, error) {
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func (f *FakeExecutor) Run(ctx context.Context, cmd services.Command) (*services.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Handler == nil {
		return &services.Result{}, nil
	}
	return f.Handler(ctx, cmd)
}

// Calls returns a copy of the recorded commands.
func (f *FakeExecutor) Calls() []services.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsWith returns the recorded commands whose arguments contain every arg.
func (f *FakeExecutor) CallsWith(args ...string) []services.Command {
	var out []services.Command
	for _, c := range f.Calls() {
		matched := true
		for _, a := range args {
			if !slices.Contains(c.Args, a) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, c)
		}
	}
	return out
}

// Failure builds the error a real executor returns for a non-zero exit.
func Failure(name string, code int, stderr string) (*services.Result, error) {
	return &services.Result{ExitCode: code, Stderr: stderr},
		fmt.Errorf("%w: %s exited with status %d: %s", shared.ErrCommandFailed, name, code, stderr)
}

// PythonHost simulates a host python and the environments it creates.
//
// It answers `--version`, `-m venv`, `-m pip install` and `-m pip list`, and `<tool> --version`
// for executables inside an environment.
type PythonHost struct {
	Platform platform.Platform
	Version  string          // reported by --version, e.g. "Python 3.12.1"
	Broken   map[string]bool // normalised package names whose install fails
	Tools    map[string]string

	mu        sync.Mutex
	installed map[string]string
	order     []string
	venvs     int
}

// NewPythonHost creates a [PythonHost] for p with a recent interpreter.
func NewPythonHost(p platform.Platform) *PythonHost {
	return &PythonHost{
		Platform:  p,
		Version:   "Python 3.12.1",
		Broken:    map[string]bool{},
		Tools:     map[string]string{},
		installed: map[string]string{},
	}
}

// Executor returns a [FakeExecutor] whose interpreter candidates all resolve.
func (h *PythonHost) Executor() *FakeExecutor {
	paths := map[string]string{}
	for _, c := range h.Platform.Interpreters() {
		paths[c[0]] = "/usr/bin/" + c[0]
	}
	return &FakeExecutor{Paths: paths, Handler: h.handle}
}

// Installed returns the normalised names installed so far, in install order.
func (h *PythonHost) Installed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.order)
}

// Has reports whether name is installed.
func (h *PythonHost) Has(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.installed[models.NormalizeName(name)]
	return ok
}

// Venvs returns how many times `-m venv` ran.
func (h *PythonHost) Venvs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.venvs
}

func (h *PythonHost) handle(_ context.Context, cmd services.Command) (*services.Result, error) {
	args := cmd.Args
	if i := slices.Index(args, "-m"); i >= 0 {
		args = args[i:]
	}

	switch {
	case len(args) > 0 && args[len(args)-1] == "--version":
		base := strings.TrimSuffix(filepath.Base(cmd.Name), ".exe")
		if v, ok := h.Tools[base]; ok {
			return &services.Result{Stdout: v + "\n"}, nil
		}
		if strings.HasPrefix(base, "python") || base == "py" {
			return &services.Result{Stdout: h.Version + "\n"}, nil
		}
		return Failure(cmd.Name, 127, "command not found")
	case len(args) >= 3 && args[0] == "-m" && args[1] == "venv":
		return h.venv(args[len(args)-1])
	case len(args) >= 4 && args[0] == "-m" && args[1] == "pip" && args[2] == "install":
		return h.install(args[len(args)-1])
	case len(args) >= 3 && args[0] == "-m" && args[1] == "pip" && args[2] == "list":
		return h.list()
	}
	return &services.Result{}, nil
}

func (h *PythonHost) pyvenvCfg() string {
	return "home = /usr/bin\ninclude-system-site-packages = false\nversion = " + strings.TrimPrefix(h.Version, "Python ") + "\n"
}

func (h *PythonHost) venv(path string) (*services.Result, error) {
	python := h.Platform.Executable(path, "python")
	if err := os.MkdirAll(filepath.Dir(python), 0o755); err != nil {
		return Failure("python", 1, err.Error())
	}
	if err := os.WriteFile(filepath.Join(path, "pyvenv.cfg"), []byte(h.pyvenvCfg()), 0o644); err != nil {
		return Failure("python", 1, err.Error())
	}
	if err := os.WriteFile(python, []byte("#!/bin/sh\n"), 0o755); err != nil {
		return Failure("python", 1, err.Error())
	}

	h.mu.Lock()
	h.venvs++
	h.mu.Unlock()
	return &services.Result{}, nil
}

func (h *PythonHost) install(spec string) (*services.Result, error) {
	name, version, _ := strings.Cut(spec, "==")
	key := models.NormalizeName(name)

	if h.Broken[key] {
		return Failure("python", 1, "ERROR: No matching distribution found for "+spec)
	}
	if version == "" {
		version = "1.0.0"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.installed[key]; !ok {
		h.order = append(h.order, key)
	}
	h.installed[key] = version
	return &services.Result{Stdout: "Successfully installed " + name + "-" + version + "\n"}, nil
}

func (h *PythonHost) list() (*services.Result, error) {
	h.mu.Lock()
	entries := make([]map[string]string, 0, len(h.order))
	for _, key := range h.order {
		entries = append(entries, map[string]string{"name": key, "version": h.installed[key]})
	}
	h.mu.Unlock()

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return &services.Result{Stdout: string(data)}, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
