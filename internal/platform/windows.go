package platform

import (
	"path/filepath"
	"strings"
)

// Windows is the windows-shell adapter (cmd.exe and PowerShell).
type Windows struct{}

func (Windows) Name() string { return WindowsShell }

// Interpreters prefers the py launcher, which is installed even when python is not on PATH.
func (Windows) Interpreters() [][]string {
	return [][]string{{"py", "-3"}, {"python"}}
}

func (Windows) BinDir() string { return "Scripts" }

func (w Windows) Executable(envPath, name string) string {
	if !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	return filepath.Join(envPath, w.BinDir(), name)
}

func (w Windows) ActivationHint(envPath string) string {
	return filepath.Join(envPath, w.BinDir(), "activate.bat")
}

func (w Windows) Environ(base []string, envPath string) []string {
	return activate(base, envPath, filepath.Join(envPath, w.BinDir()), true)
}
