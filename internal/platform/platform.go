package platform

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/desertthunder/spotenv/internal/shared"
)

const (
	PosixShell   = "posix-shell"
	WindowsShell = "windows-shell"
)

var getRuntime = func() string { return runtime.GOOS }

// Platform is a shell-environment adapter.
type Platform interface {
	// Name returns the platform identifier.
	Name() string

	// Interpreters returns candidate commands, in search order, for creating environments.
	Interpreters() [][]string

	// BinDir returns the directory, relative to the environment root, holding its executables.
	BinDir() string

	// Executable returns the path of the named executable inside the environment at envPath.
	Executable(envPath, name string) string

	// ActivationHint returns the shell command a user runs to activate the environment.
	ActivationHint(envPath string) string

	// Environ returns base with the environment at envPath activated.
	Environ(base []string, envPath string) []string
}

// Names returns every supported platform identifier.
func Names() []string {
	return []string{PosixShell, WindowsShell}
}

// Lookup returns the [Platform] for name.
func Lookup(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PosixShell, "posix":
		return Posix{}, nil
	case WindowsShell, "windows":
		return Windows{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", shared.ErrUnsupportedPlatform, name, strings.Join(Names(), ", "))
	}
}

// Detect returns the [Platform] for the running host.
func Detect() Platform {
	if getRuntime() == "windows" {
		return Windows{}
	}
	return Posix{}
}

// Resolve returns the named platform, or the detected one when name is empty.
func Resolve(name string) (Platform, error) {
	if name == "" {
		return Detect(), nil
	}
	return Lookup(name)
}

// activate sets VIRTUAL_ENV, prepends binDir to PATH and drops PYTHONHOME.
// fold matches variable names case-insensitively.
func activate(base []string, envPath, binDir string, fold bool) []string {
	env := make([]string, 0, len(base)+1)
	path := ""
	pathKey := "PATH"

	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case equal(key, "PYTHONHOME", fold), equal(key, "VIRTUAL_ENV", fold):
			continue
		case equal(key, "PATH", fold):
			path = value
			pathKey = key
			continue
		}
		env = append(env, kv)
	}

	sep := ":"
	if fold {
		sep = ";"
	}
	if path != "" {
		binDir = binDir + sep + path
	}

	return append(env, "VIRTUAL_ENV="+envPath, pathKey+"="+binDir)
}

func equal(a, b string, fold bool) bool {
	if fold {
		return strings.EqualFold(a, b)
	}
	return a == b
}
