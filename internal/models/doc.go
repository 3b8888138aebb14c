// Package models defines the domain entities shared by the bootstrapper, the install ledger and the CLI.
//
// The package contains two categories of types:
//
// 1. Manifest types: the packages installed into the isolated environment
//   - [Dependency] : a package name with an optional pinned version
//   - [Manifest] : an ordered, duplicate-free list of dependencies
//
// 2. Ledger records: rows persisted by the repositories package
//   - [EnvironmentRecord] : an environment created or reused by a bootstrap
//   - [RunRecord] : one bootstrap attempt and its terminal state
//   - [InstallRecord] : one install attempt within a run
//
// Dependency names are compared after PEP 503 normalisation, see [NormalizeName].
package models
