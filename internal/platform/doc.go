// Package platform abstracts the host shell environment the isolated python environment is built for.
//
// A [Platform] is selected once at startup, either detected from the host ([Detect]) or named explicitly
// ([Lookup]). The closed set of identifiers is [PosixShell] and [WindowsShell]. Each adapter knows which
// interpreter commands to try, where the environment keeps its executables, and how the activated
// process environment differs from the parent's.
package platform
