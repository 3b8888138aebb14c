package services

import (
	"context"
	"strings"
)

// Command describes a subprocess invocation.
type Command struct {
	Name string
	Args []string
	Env  []string // nil inherits the parent environment
	Dir  string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the captured outcome of a finished subprocess.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs subprocesses.
type Executor interface {
	// Run starts cmd and waits for it. A non-zero exit returns the [Result] and an error
	// wrapping [shared.ErrCommandFailed].
	Run(ctx context.Context, cmd Command) (*Result, error)

	// LookPath resolves an executable name against PATH.
	LookPath(name string) (string, error)
}

// tail returns the last n non-empty lines of s, joined by "; ".
func tail(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
