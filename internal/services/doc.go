// Package services wraps the external programs spotenv drives: the python interpreter, pip,
// the wrapped downloader (spotdl) and standalone binaries provisioned with go-ytdlp.
//
// # Executor
//
// Every subprocess goes through the [Executor] interface so the bootstrapper can be tested without
// spawning processes. [ShellExecutor] is the os/exec implementation; it captures stdout and stderr
// and mirrors each output line to the debug log.
//
// A non-zero exit status is reported as [shared.ErrCommandFailed] together with the captured [Result].
//
// # Interpreter
//
// [FindInterpreter] probes candidate commands and checks the reported version against a
// semver constraint (Masterminds/semver).
//
// # Package installation
//
// [PipInstaller] installs one [models.Dependency] per invocation with `python -m pip install`
// and lists installed distributions with `pip list --format=json`.
//
// # Wrapped downloader
//
// [Downloader] runs `spotdl download` once per Spotify identifier, paced by a rate limiter.
// Identifiers and the output format are validated before any process starts.
package services
