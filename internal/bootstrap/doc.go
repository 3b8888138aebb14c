// Package bootstrap creates the isolated python environment for the downloader stack and installs the
// Dependency Manifest into it.
//
// The [Bootstrapper] drives a small state machine (not-created, created, activated, then installed or
// failed) and reports each step through a non-blocking progress channel, so the CLI and the TUI can
// share one implementation. Environment activation is an explicit [Activation] handle rather than a
// mutation of the current process.
package bootstrap
