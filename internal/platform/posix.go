package platform

import "path/filepath"

// Posix is the posix-shell adapter (Linux, macOS, BSDs).
type Posix struct{}

func (Posix) Name() string { return PosixShell }

func (Posix) Interpreters() [][]string {
	return [][]string{{"python3"}, {"python"}}
}

func (Posix) BinDir() string { return "bin" }

func (p Posix) Executable(envPath, name string) string {
	return filepath.Join(envPath, p.BinDir(), name)
}

func (p Posix) ActivationHint(envPath string) string {
	return "source " + filepath.Join(envPath, p.BinDir(), "activate")
}

func (p Posix) Environ(base []string, envPath string) []string {
	return activate(base, envPath, filepath.Join(envPath, p.BinDir()), false)
}
