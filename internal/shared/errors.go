package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Manifest errors
	ErrInvalidManifest     = fmt.Errorf("invalid manifest")
	ErrDuplicateDependency = fmt.Errorf("duplicate dependency")
	ErrInvalidDependency   = fmt.Errorf("invalid dependency")
	ErrMissingDependency   = fmt.Errorf("dependency not installed")

	// Platform and environment errors
	ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")
	ErrInterpreterNotFound = fmt.Errorf("python interpreter not found")
	ErrInterpreterVersion  = fmt.Errorf("python interpreter version not supported")
	ErrPathNotWritable     = fmt.Errorf("path not writable")
	ErrPathNotEmpty        = fmt.Errorf("path exists and is not an environment")
	ErrEnvironmentBroken   = fmt.Errorf("environment is incomplete")
	ErrNotActivated        = fmt.Errorf("environment not activated")
	ErrInvalidTransition   = fmt.Errorf("invalid bootstrap state transition")

	// Subprocess errors
	ErrCommandFailed = fmt.Errorf("command failed")
	ErrTimeout       = fmt.Errorf("operation timed out")

	// Wrapped tool errors
	ErrInvalidIdentifier = fmt.Errorf("invalid spotify identifier")
	ErrInvalidFormat     = fmt.Errorf("invalid output format")
	ErrToolNotInstalled  = fmt.Errorf("tool not installed")
	ErrDownloadFailed    = fmt.Errorf("download failed")

	// Ledger errors
	ErrNotFound = fmt.Errorf("record not found")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// EnvironmentCreationError reports a failure to create the isolated environment at Path.
type EnvironmentCreationError struct {
	Path string
	Err  error
}

func (e *EnvironmentCreationError) Error() string {
	return fmt.Sprintf("failed to create environment at %s: %v", e.Path, e.Err)
}

func (e *EnvironmentCreationError) Unwrap() error { return e.Err }

// DependencyInstallError reports the first dependency that could not be installed.
type DependencyInstallError struct {
	Name string
	Err  error
}

func (e *DependencyInstallError) Error() string {
	return fmt.Sprintf("failed to install %s: %v", e.Name, e.Err)
}

func (e *DependencyInstallError) Unwrap() error { return e.Err }
