package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_platform.sql":    "CREATE TABLE templates (id UUID PRIMARY KEY);",
		"002_run_history.sql": "CREATE TABLE run_history (run_id UUID PRIMARY KEY);",
		"003_indexes.sql":     "CREATE INDEX idx_t ON templates(id);",
	})

	migrations, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 {
		t.Errorf("expected version 1, got %d", migrations[0].Version)
	}
	if migrations[0].Name != "001_platform.sql" {
		t.Errorf("expected name 001_platform.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE templates (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[1].Version != 2 || migrations[2].Version != 3 {
		t.Errorf("bad version order: %d, %d", migrations[1].Version, migrations[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"010_late.sql":   "SELECT 10;",
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"005_middle.sql": "SELECT 5;",
	})

	migrations, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(migrations))
	}

	want := []int{1, 2, 5, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsNonMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_clinical.sql":   "SELECT 1;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not sql at all",
		"abc_bad.sql":        "-- non-numeric prefix",
		"002_also_valid.sql": "SELECT 2;",
	})

	migrations, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("bad versions: %d, %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := loadMigrations(t.TempDir())
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations from empty dir, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := loadMigrations("/nonexistent/path/that/does/not/exist"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestNewMigrator_SplitsSharedAndTenantDirs(t *testing.T) {
	m := NewMigrator(nil, "migrations/shared", "migrations/tenant")
	if m == nil {
		t.Fatal("expected non-nil Migrator")
	}
	if m.sharedDir != "migrations/shared" {
		t.Errorf("sharedDir = %q", m.sharedDir)
	}
	if m.tenantDir != "migrations/tenant" {
		t.Errorf("tenantDir = %q", m.tenantDir)
	}
}

func TestMigrationStatus_PendingHasNoTimestamp(t *testing.T) {
	// Status merges loaded migrations against the ledger; a pending
	// migration must report Applied=false with a nil timestamp.
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_platform.sql": "SELECT 1;",
		"002_history.sql":  "SELECT 2;",
	})

	migrations, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}

	applied := map[int]bool{1: true}
	var statuses []MigrationStatus
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: applied[mig.Version],
		})
	}

	if !statuses[0].Applied {
		t.Error("expected migration 001 to be applied")
	}
	if statuses[1].Applied {
		t.Error("expected migration 002 to be pending")
	}
	if statuses[1].AppliedAt != nil {
		t.Error("expected nil AppliedAt for pending migration")
	}
}
