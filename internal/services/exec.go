package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotenv/internal/shared"
)

// ShellExecutor implements [Executor] with os/exec.
type ShellExecutor struct {
	logger *log.Logger
	stdout io.Writer // optional mirror of subprocess stdout
}

// NewShellExecutor creates a [ShellExecutor]. A nil logger uses [shared.NewLogger].
func NewShellExecutor(logger *log.Logger) *ShellExecutor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ShellExecutor{logger: logger}
}

// WithOutput returns a copy of e that also streams subprocess stdout to w.
func (e *ShellExecutor) WithOutput(w io.Writer) *ShellExecutor {
	c := *e
	c.stdout = w
	return &c
}

func (e *ShellExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (e *ShellExecutor) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	outLog := &logWriter{logger: e.logger, prefix: c.Name}
	errLog := &logWriter{logger: e.logger, prefix: c.Name}

	outWriters := []io.Writer{&stdout, outLog}
	if e.stdout != nil {
		outWriters = append(outWriters, e.stdout)
	}
	cmd.Stdout = io.MultiWriter(outWriters...)
	cmd.Stderr = io.MultiWriter(&stderr, errLog)

	e.logger.Debug("running command", "cmd", c.String())
	err := cmd.Run()
	outLog.Flush()
	errLog.Flush()

	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.ExitCode = -1
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return result, fmt.Errorf("%w: %s", shared.ErrTimeout, c.String())
			}
			return result, ctxErr
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, commandFailed(c, result)
		}
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	return result, nil
}

func commandFailed(c Command, r *Result) error {
	msg := tail(r.Stderr, 3)
	if msg == "" {
		msg = tail(r.Stdout, 3)
	}
	return fmt.Errorf("%w: %s exited with status %d: %s", shared.ErrCommandFailed, c.Name, r.ExitCode, msg)
}

// logWriter mirrors complete lines to the debug log.
type logWriter struct {
	logger *log.Logger
	prefix string
	buf    []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		w.emit(string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *logWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *logWriter) emit(line string) {
	if line = strings.TrimRight(line, "\r"); line != "" {
		w.logger.Debug(line, "cmd", w.prefix)
	}
}
