package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/platform"
	"github.com/desertthunder/spotenv/internal/services"
	"github.com/desertthunder/spotenv/internal/shared"
)

// DefaultPythonConstraint is the oldest interpreter spotdl supports.
const DefaultPythonConstraint = ">= 3.8"

// Installer installs dependencies with an environment's interpreter.
type Installer interface {
	Install(ctx context.Context, python string, env []string, dep models.Dependency) error
	Installed(ctx context.Context, python string, env []string) (map[string]string, error)
}

// Recorder persists bootstrap runs. Its errors are logged and never abort a bootstrap.
type Recorder interface {
	// SaveEnvironment upserts rec by path and sets rec.ID.
	SaveEnvironment(ctx context.Context, rec *models.EnvironmentRecord) error
	// SaveRun upserts run by ID.
	SaveRun(ctx context.Context, run *models.RunRecord) error
	SaveInstall(ctx context.Context, install *models.InstallRecord) error
}

// Options configures a [Bootstrapper].
type Options struct {
	Platform         platform.Platform // required
	Executor         services.Executor // defaults to [services.ShellExecutor]
	Installer        Installer         // defaults to [services.PipInstaller]
	Recorder         Recorder          // optional
	Logger           *log.Logger
	Python           string          // interpreter overriding the platform candidates
	PythonConstraint string          // defaults to [DefaultPythonConstraint]
	ManifestSource   string          // recorded with each run
	Environ          func() []string // base process environment, defaults to [os.Environ]
}

// Environment is a created isolated environment.
type Environment struct {
	Path        string `json:"path"`
	Platform    string `json:"platform"`
	Interpreter string `json:"interpreter,omitempty"`
	Reused      bool   `json:"reused"`
}

// Activation is a scoped handle on an activated environment.
//
// It carries the variables a shell activation script would set. Nothing in the current
// process is modified; callers pass [Activation.Environ] to the subprocesses they start.
type Activation struct {
	env      *Environment
	platform platform.Platform
	environ  []string

	mu     sync.Mutex
	active bool
}

// Environment returns the activated environment.
func (a *Activation) Environment() *Environment { return a.env }

// Environ returns a copy of the activated process environment.
func (a *Activation) Environ() []string { return slices.Clone(a.environ) }

// Python returns the environment's interpreter.
func (a *Activation) Python() string { return a.Executable("python") }

// Executable returns the path of the named executable inside the environment.
func (a *Activation) Executable(name string) string {
	return a.platform.Executable(a.env.Path, name)
}

// Hint returns the shell command a user runs to activate the environment interactively.
func (a *Activation) Hint() string { return a.platform.ActivationHint(a.env.Path) }

// Active reports whether the handle is still live.
func (a *Activation) Active() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Deactivate releases the handle. Calling it more than once is a no-op.
func (a *Activation) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
}

func (a *Activation) check() error {
	if !a.Active() {
		return shared.ErrNotActivated
	}
	return nil
}

// InstallResult is the outcome of one manifest entry.
type InstallResult struct {
	Dependency models.Dependency
	Status     models.InstallStatus
	Err        error
}

// Result contains everything a bootstrap run produced.
type Result struct {
	RunID          string
	Path           string
	Platform       string
	ManifestSource string
	Environment    *Environment
	Activation     *Activation
	Installs       []InstallResult // attempted entries, in order
	State          State
	History        []State
	StartedAt      time.Time
	FinishedAt     time.Time
	Err            error
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Bootstrapper creates, activates and populates isolated environments for one platform.
type Bootstrapper struct {
	opts   Options
	logger *log.Logger
}

// New creates a [Bootstrapper], filling unset [Options] with defaults.
func New(opts Options) (*Bootstrapper, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("%w: platform", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Executor == nil {
		opts.Executor = services.NewShellExecutor(opts.Logger)
	}
	if opts.Installer == nil {
		opts.Installer = services.NewPipInstaller(opts.Executor)
	}
	if opts.PythonConstraint == "" {
		opts.PythonConstraint = DefaultPythonConstraint
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}

	return &Bootstrapper{
		opts:   opts,
		logger: shared.WithLogger(opts.Logger, "platform", opts.Platform.Name()),
	}, nil
}

// Platform returns the platform adapter in use.
func (b *Bootstrapper) Platform() platform.Platform { return b.opts.Platform }

// Interpreter locates the host interpreter used to create environments.
func (b *Bootstrapper) Interpreter(ctx context.Context) (*services.Interpreter, error) {
	candidates := b.opts.Platform.Interpreters()
	if b.opts.Python != "" {
		candidates = [][]string{{b.opts.Python}}
	}
	return services.FindInterpreter(ctx, b.opts.Executor, candidates, b.opts.PythonConstraint)
}

// IsEnvironment reports whether path holds a usable environment for this platform.
func (b *Bootstrapper) IsEnvironment(path string) bool {
	if _, err := os.Stat(filepath.Join(path, "pyvenv.cfg")); err != nil {
		return false
	}
	info, err := os.Stat(b.opts.Platform.Executable(path, "python"))
	return err == nil && !info.IsDir()
}

// CreateEnvironment creates an isolated environment rooted at path.
//
// An existing environment is reused untouched. Every failure is an [*shared.EnvironmentCreationError].
func (b *Bootstrapper) CreateEnvironment(ctx context.Context, path string) (*Environment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &shared.EnvironmentCreationError{Path: path, Err: err}
	}
	fail := func(err error) (*Environment, error) {
		return nil, &shared.EnvironmentCreationError{Path: abs, Err: err}
	}

	env := &Environment{Path: abs, Platform: b.opts.Platform.Name()}
	if b.IsEnvironment(abs) {
		env.Reused = true
		if v, err := venvVersion(abs); err != nil {
			b.logger.Warn("unknown environment interpreter", "path", abs, "error", err)
		} else {
			env.Interpreter = fmt.Sprintf("%s (%s)", b.opts.Platform.Executable(abs, "python"), v)
		}
		b.logger.Info("reusing environment", "path", abs, "python", env.Interpreter)
		return env, nil
	}

	if err := b.prepareDir(abs); err != nil {
		return fail(err)
	}

	interp, err := b.Interpreter(ctx)
	if err != nil {
		return fail(err)
	}
	env.Interpreter = interp.String()

	b.logger.Info("creating environment", "path", abs, "python", env.Interpreter)
	if _, err := b.opts.Executor.Run(ctx, interp.Args("-m", "venv", abs)); err != nil {
		return fail(err)
	}
	if !b.IsEnvironment(abs) {
		return fail(fmt.Errorf("%w: %s missing after venv", shared.ErrEnvironmentBroken, b.opts.Platform.Executable(abs, "python")))
	}
	return env, nil
}

// prepareDir ensures path is an empty, writable directory.
func (b *Bootstrapper) prepareDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrPathNotWritable, err)
		}
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%w: %s is a file", shared.ErrPathNotEmpty, path)
	default:
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			if _, err := os.Stat(filepath.Join(path, "pyvenv.cfg")); err == nil {
				return fmt.Errorf("%w: %s has pyvenv.cfg but no interpreter", shared.ErrEnvironmentBroken, path)
			}
			return fmt.Errorf("%w: %s", shared.ErrPathNotEmpty, path)
		}
	}

	probe, err := os.CreateTemp(path, ".spotenv-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPathNotWritable, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// Activate returns a live [Activation] for env.
func (b *Bootstrapper) Activate(env *Environment) (*Activation, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: environment", shared.ErrMissingArgument)
	}
	if !b.IsEnvironment(env.Path) {
		return nil, fmt.Errorf("%w: %s", shared.ErrEnvironmentBroken, env.Path)
	}

	return &Activation{
		env:      env,
		platform: b.opts.Platform,
		environ:  b.opts.Platform.Environ(b.opts.Environ(), env.Path),
		active:   true,
	}, nil
}

// Install installs every manifest entry in order, stopping at the first failure.
//
// The failure is returned as a [*shared.DependencyInstallError]; entries installed before it stay installed.
func (b *Bootstrapper) Install(ctx context.Context, act *Activation, m *models.Manifest) error {
	_, err := b.install(ctx, act, m, nil, nil)
	return err
}

// install runs the install loop. before and after, when set, bracket every attempt.
func (b *Bootstrapper) install(
	ctx context.Context, act *Activation, m *models.Manifest,
	before func(step, total int, dep models.Dependency), after func(step, total int, r InstallResult),
) ([]InstallResult, error) {
	if err := act.check(); err != nil {
		return nil, err
	}

	deps := m.Dependencies()
	results := make([]InstallResult, 0, len(deps))

	for i, dep := range deps {
		if before != nil {
			before(i+1, len(deps), dep)
		}
		b.logger.Info("installing", "package", dep.Spec(), "step", i+1, "total", len(deps))
		err := b.opts.Installer.Install(ctx, act.Python(), act.Environ(), dep)

		r := InstallResult{Dependency: dep, Status: models.InstallStatusInstalled}
		if err != nil {
			r.Status = models.InstallStatusFailed
			r.Err = &shared.DependencyInstallError{Name: dep.Name, Err: err}
		}
		results = append(results, r)
		if after != nil {
			after(i+1, len(deps), r)
		}
		if r.Err != nil {
			return results, r.Err
		}
	}
	return results, nil
}

// Verify returns the manifest names not installed in the activated environment.
func (b *Bootstrapper) Verify(ctx context.Context, act *Activation, m *models.Manifest) ([]string, error) {
	if err := act.check(); err != nil {
		return nil, err
	}

	installed, err := b.opts.Installer.Installed(ctx, act.Python(), act.Environ())
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, dep := range m.Dependencies() {
		version, ok := installed[dep.Key()]
		if !ok || (dep.Version != "" && version != dep.Version) {
			missing = append(missing, dep.Name)
		}
	}
	return missing, nil
}

// venvVersion reads the interpreter version an environment was created with from its pyvenv.cfg.
func venvVersion(path string) (*semver.Version, error) {
	file, err := os.Open(filepath.Join(path, "pyvenv.cfg"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		// venv writes version, virtualenv writes version_info
		switch strings.TrimSpace(k) {
		case "version", "version_info":
			return services.ParseVersion(v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no version in %s", file.Name())
}

// Bootstrap creates the environment at path, activates it and installs m.
//
// The returned [Result] is populated even on failure. Progress sends never block.
func (b *Bootstrapper) Bootstrap(ctx context.Context, path string, m *models.Manifest, progress chan<- ProgressUpdate) (*Result, error) {
	sm := newMachine()
	res := &Result{
		RunID:          shared.GenerateID(),
		Path:           path,
		Platform:       b.opts.Platform.Name(),
		ManifestSource: b.opts.ManifestSource,
		State:          sm.state,
		StartedAt:      time.Now().UTC(),
	}
	run := &models.RunRecord{
		ID:             res.RunID,
		State:          string(sm.state),
		ManifestSource: res.ManifestSource,
		StartedAt:      res.StartedAt,
		FinishedAt:     res.StartedAt,
	}
	var envRec *models.EnvironmentRecord

	finish := func(err error) (*Result, error) {
		if err != nil {
			res.Err = err
			if tErr := sm.to(StateFailed); tErr != nil {
				b.logger.Error("state transition", "error", tErr)
			}
		}
		res.State = sm.state
		res.History = slices.Clone(sm.history)
		res.FinishedAt = time.Now().UTC()

		// the final state is recorded even when ctx was cancelled
		rctx := context.WithoutCancel(ctx)
		if envRec != nil {
			envRec.State = string(sm.state)
			b.record("environment", b.saveEnvironment(rctx, envRec))
		}
		run.State = string(sm.state)
		run.FinishedAt = res.FinishedAt
		if err != nil {
			run.ErrorMessage = err.Error()
		}
		b.record("run", b.saveRun(rctx, run))

		if err != nil {
			b.logger.Error("bootstrap failed", "state", res.State, "error", err)
			sendProgress(progress, failedUpdate(res))
			return res, err
		}
		sendProgress(progress, completeUpdate(res))
		return res, nil
	}

	sendProgress(progress, creatingUpdate(path))
	env, err := b.CreateEnvironment(ctx, path)
	if err != nil {
		return finish(err)
	}
	res.Path = env.Path
	res.Environment = env
	if err := sm.to(StateCreated); err != nil {
		return finish(err)
	}
	sendProgress(progress, createdUpdate(env))

	envRec = &models.EnvironmentRecord{
		Path:        env.Path,
		Platform:    env.Platform,
		Interpreter: env.Interpreter,
		State:       string(sm.state),
	}
	if b.record("environment", b.saveEnvironment(ctx, envRec)) {
		run.EnvironmentID = envRec.ID
	}
	b.record("run", b.saveRun(ctx, run))

	sendProgress(progress, activatingUpdate(env))
	act, err := b.Activate(env)
	if err != nil {
		return finish(err)
	}
	res.Activation = act
	if err := sm.to(StateActivated); err != nil {
		return finish(err)
	}

	before := func(step, total int, dep models.Dependency) {
		sendProgress(progress, installingUpdate(step, total, dep))
	}
	results, err := b.install(ctx, act, m, before, func(step, total int, r InstallResult) {
		if r.Err != nil {
			sendProgress(progress, installFailedUpdate(step, total, r.Dependency, r.Err))
		} else {
			sendProgress(progress, installedUpdate(step, total, r.Dependency))
		}
		b.record("install", b.saveInstall(ctx, run.ID, step, r))
	})
	res.Installs = results
	if err != nil {
		return finish(err)
	}

	if err := sm.to(StateInstalled); err != nil {
		return finish(err)
	}
	b.logger.Info("bootstrap complete", "path", env.Path, "packages", len(results))
	return finish(nil)
}

// record logs a recorder failure and reports whether the write succeeded.
func (b *Bootstrapper) record(what string, err error) bool {
	if err != nil {
		b.logger.Warn("failed to record "+what, "error", err)
		return false
	}
	return true
}

func (b *Bootstrapper) saveEnvironment(ctx context.Context, rec *models.EnvironmentRecord) error {
	if b.opts.Recorder == nil {
		return nil
	}
	return b.opts.Recorder.SaveEnvironment(ctx, rec)
}

func (b *Bootstrapper) saveRun(ctx context.Context, run *models.RunRecord) error {
	if b.opts.Recorder == nil {
		return nil
	}
	return b.opts.Recorder.SaveRun(ctx, run)
}

func (b *Bootstrapper) saveInstall(ctx context.Context, runID string, position int, r InstallResult) error {
	if b.opts.Recorder == nil {
		return nil
	}
	rec := &models.InstallRecord{
		RunID:    runID,
		Position: position,
		Name:     r.Dependency.Name,
		Version:  r.Dependency.Version,
		Status:   r.Status,
	}
	if r.Err != nil {
		rec.ErrorMessage = r.Err.Error()
	}
	return b.opts.Recorder.SaveInstall(ctx, rec)
}
