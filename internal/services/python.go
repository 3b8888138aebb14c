package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/desertthunder/spotenv/internal/shared"
)

// ProbeTimeout bounds every `--version` probe.
const ProbeTimeout = 10 * time.Second

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// Interpreter is a python interpreter found on the host.
type Interpreter struct {
	Command []string // executable followed by fixed arguments, e.g. ["py", "-3"]
	Path    string
	Version *semver.Version
}

// Args returns the interpreter command followed by args.
func (i *Interpreter) Args(args ...string) Command {
	return Command{Name: i.Path, Args: append(append([]string{}, i.Command[1:]...), args...)}
}

func (i *Interpreter) String() string {
	return fmt.Sprintf("%s (%s)", strings.Join(i.Command, " "), i.Version)
}

// ParseVersion extracts the first dotted version from tool output such as "Python 3.11.4".
func ParseVersion(output string) (*semver.Version, error) {
	match := versionPattern.FindStringSubmatch(output)
	if match == nil {
		return nil, fmt.Errorf("no version in %q", strings.TrimSpace(output))
	}

	patch := match[3]
	if patch == "" {
		patch = "0"
	}
	return semver.NewVersion(fmt.Sprintf("%s.%s.%s", match[1], match[2], patch))
}

// FindInterpreter returns the first candidate that exists and satisfies constraint.
//
// An empty constraint accepts any version. When candidates exist but are all too old
// the error wraps [shared.ErrInterpreterVersion], otherwise [shared.ErrInterpreterNotFound].
func FindInterpreter(ctx context.Context, exec Executor, candidates [][]string, constraint string) (*Interpreter, error) {
	var want *semver.Constraints
	if constraint != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("%w: python_version %q: %v", shared.ErrInvalidConfig, constraint, err)
		}
		want = c
	}

	var rejected []string
	for _, candidate := range candidates {
		if len(candidate) == 0 {
			continue
		}

		path, err := exec.LookPath(candidate[0])
		if err != nil {
			continue
		}

		interp := &Interpreter{Command: candidate, Path: path}
		version, err := probeVersion(ctx, exec, interp.Args("--version"))
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %v", strings.Join(candidate, " "), err))
			continue
		}
		interp.Version = version

		if want != nil && !want.Check(version) {
			rejected = append(rejected, fmt.Sprintf("%s: %s does not satisfy %s", strings.Join(candidate, " "), version, constraint))
			continue
		}
		return interp, nil
	}

	if len(rejected) > 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrInterpreterVersion, strings.Join(rejected, "; "))
	}
	return nil, fmt.Errorf("%w: tried %s", shared.ErrInterpreterNotFound, describe(candidates))
}

// ToolVersion runs `<tool> --version` with env and returns the reported version line.
func ToolVersion(ctx context.Context, exec Executor, tool string, env []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	res, err := exec.Run(ctx, Command{Name: tool, Args: []string{"--version"}, Env: env})
	if err != nil {
		if errors.Is(err, shared.ErrTimeout) {
			return "", fmt.Errorf("checking %s version: %w", tool, err)
		}
		return "", fmt.Errorf("%w: %s: %v", shared.ErrToolNotInstalled, tool, err)
	}

	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		out = strings.TrimSpace(res.Stderr)
	}
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line), nil
}

func probeVersion(ctx context.Context, exec Executor, cmd Command) (*semver.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	res, err := exec.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	// python 2 prints its version on stderr
	return ParseVersion(res.Stdout + "\n" + res.Stderr)
}

func describe(candidates [][]string) string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, strings.Join(c, " "))
	}
	return strings.Join(names, ", ")
}
