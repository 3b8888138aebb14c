// Package repositories implements SQLite persistence for the install ledger.
//
// Key Implementations:
//   - [EnvironmentRepository] : Environments created or reused by a bootstrap, unique by path
//   - [RunRepository] : One row per bootstrap attempt with its terminal state and error
//   - [InstallRepository] : Per-dependency install attempts within a run
//   - [Ledger] : Adapter writing bootstrap progress through all three
//
// Records are keyed by UUIDs from [shared.GenerateID]; timestamps are stored in UTC.
package repositories
