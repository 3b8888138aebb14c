package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotenv/internal/bootstrap"
	"github.com/desertthunder/spotenv/internal/manifest"
	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/platform"
	"github.com/desertthunder/spotenv/internal/repositories"
	"github.com/desertthunder/spotenv/internal/services"
	"github.com/desertthunder/spotenv/internal/shared"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	executor   services.Executor
	environ    func() []string
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag when the app starts.
type RunnerOpts struct {
	Config   *shared.Config
	Logger   *log.Logger
	Output   io.Writer
	Executor services.Executor
	Environ  func() []string
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}

	return &Runner{
		config:   opts.Config,
		logger:   opts.Logger,
		output:   opts.Output,
		executor: opts.Executor,
		environ:  opts.Environ,
	}
}

// SetLogger replaces the logger used by every subsequent command.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// app builds the root command. Running it without a subcommand bootstraps the environment.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "spotenv",
		Usage:   "Bootstrap an isolated python environment for the spotdl downloader",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("SPOTENV_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.before,
		Action:   r.Bootstrap,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		bootstrapCommand, verifyCommand, doctorCommand, manifestCommand, historyCommand,
		downloadCommand, provisionCommand, configCommand, dbCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the configuration and applies global flags.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if r.config != nil {
		return ctx, nil
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err != nil {
		if cmd.IsSet("config") {
			r.logger.Warn("config file not found, using defaults", "path", r.configPath)
		}
		r.config = shared.DefaultConfig()
		return ctx, nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.logger.Debug("loaded config", "path", r.configPath)
	return ctx, nil
}

func (r *Runner) exec() services.Executor {
	if r.executor == nil {
		r.executor = services.NewShellExecutor(r.logger)
	}
	return r.executor
}

// envPath returns the --path flag, falling back to the configured environment path.
func (r *Runner) envPath(cmd *cli.Command) string {
	if path := cmd.String("path"); path != "" {
		return path
	}
	return r.config.Environment.Path
}

// platform resolves the --platform flag, then the configured platform, then the host.
func (r *Runner) platform(cmd *cli.Command) (platform.Platform, error) {
	name := cmd.String("platform")
	if name == "" {
		name = r.config.Environment.Platform
	}
	return platform.Resolve(name)
}

func (r *Runner) manifest(cmd *cli.Command) (*models.Manifest, manifest.Source, error) {
	return manifest.Resolve(cmd.String("manifest"), r.config.Manifest)
}

// openLedger opens the configured ledger. The ledger is nil when disabled; close is always safe to call.
func (r *Runner) openLedger() (*repositories.Ledger, func(), error) {
	db, err := shared.OpenLedger(r.config.Database)
	if err != nil {
		return nil, func() {}, err
	}
	if db == nil {
		return nil, func() {}, nil
	}
	return repositories.NewLedger(db), func() { db.Close() }, nil
}

func (r *Runner) bootstrapper(cmd *cli.Command, p platform.Platform, source manifest.Source, recorder bootstrap.Recorder) (*bootstrap.Bootstrapper, error) {
	python := cmd.String("python")
	if python == "" {
		python = r.config.Environment.Python
	}

	return bootstrap.New(bootstrap.Options{
		Platform:         p,
		Executor:         r.exec(),
		Recorder:         recorder,
		Logger:           r.logger,
		Python:           python,
		PythonConstraint: r.config.Environment.PythonVersion,
		ManifestSource:   string(source),
		Environ:          r.environ,
	})
}

// activate opens the existing environment selected by --path and --platform.
func (r *Runner) activate(cmd *cli.Command) (*bootstrap.Bootstrapper, *bootstrap.Activation, error) {
	p, err := r.platform(cmd)
	if err != nil {
		return nil, nil, err
	}
	b, err := r.bootstrapper(cmd, p, "", nil)
	if err != nil {
		return nil, nil, err
	}

	path, err := filepath.Abs(r.envPath(cmd))
	if err != nil {
		return nil, nil, err
	}
	act, err := b.Activate(&bootstrap.Environment{Path: path, Platform: p.Name()})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (run `spotenv bootstrap` first)", err)
	}
	return b, act, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
