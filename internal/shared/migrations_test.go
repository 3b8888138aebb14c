package shared

import (
	"path/filepath"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) < 2 {
			t.Fatalf("expected at least two migrations, got %d", len(migrations))
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		if migrations[0].Name != "create_ledger" {
			t.Errorf("expected first migration name create_ledger, got %q", migrations[0].Name)
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		for _, table := range []string{"environments", "runs", "installs"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		if _, err := db.Exec("SELECT manifest_source FROM runs LIMIT 1"); err != nil {
			t.Errorf("runs.manifest_source should exist after migrations: %v", err)
		}

		before, err := CurrentVersion(db)
		if err != nil {
			t.Fatalf("failed to read current version: %v", err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		after, err := CurrentVersion(db)
		if err != nil {
			t.Fatalf("failed to read current version after rollback: %v", err)
		}
		if after >= before {
			t.Errorf("expected version to decrease after rollback, got %d (was %d)", after, before)
		}

		if _, err := db.Exec("SELECT manifest_source FROM runs LIMIT 1"); err == nil {
			t.Error("runs.manifest_source should be gone after rollback")
		}
	})

	t.Run("Rollback with nothing applied", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := createMigrationsTable(db); err != nil {
			t.Fatalf("failed to create migrations table: %v", err)
		}
		if err := RollbackMigration(db); err == nil {
			t.Error("expected error when no migrations are applied")
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})

	t.Run("OpenLedger", func(t *testing.T) {
		db, err := OpenLedger(DatabaseConfig{})
		if err != nil || db != nil {
			t.Errorf("expected disabled ledger for empty path, got db=%v err=%v", db, err)
		}

		path := filepath.Join(t.TempDir(), "nested", "ledger.db")
		db, err = OpenLedger(DatabaseConfig{Path: path, MaxOpenConns: 1, MaxIdleConns: 1})
		if err != nil {
			t.Fatalf("failed to open ledger: %v", err)
		}
		defer db.Close()

		version, err := CurrentVersion(db)
		if err != nil {
			t.Fatalf("failed to read version: %v", err)
		}
		if version != 1 {
			t.Errorf("expected version 1, got %d", version)
		}
	})
}
