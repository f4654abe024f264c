package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one numbered SQL file (e.g. "001_platform.sql").
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationStatus reports whether a known migration has been applied to a
// particular schema, and when.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the platform's two migration sets: the shared set builds
// the lifecycle tables (templates, snapshots, runs, registry, activity,
// history) in the shared schema, the tenant set builds the clinical tables
// inside each template or run schema. Every schema tracks its own progress
// in a _migrations ledger, so a freshly provisioned run tenant and a
// years-old shared schema use the same machinery.
type Migrator struct {
	pool      *pgxpool.Pool
	sharedDir string
	tenantDir string
}

func NewMigrator(pool *pgxpool.Pool, sharedDir, tenantDir string) *Migrator {
	return &Migrator{pool: pool, sharedDir: sharedDir, tenantDir: tenantDir}
}

// UpShared applies pending shared migrations. It runs on every server start
// and is a no-op when the shared schema is current.
func (m *Migrator) UpShared(ctx context.Context) (int, error) {
	return m.up(ctx, SharedSchema, m.sharedDir)
}

// UpTenant applies pending tenant migrations to the tenant's schema. Called
// for every schema a launch or import provisions.
func (m *Migrator) UpTenant(ctx context.Context, tenantID string) (int, error) {
	return m.up(ctx, SchemaName(tenantID), m.tenantDir)
}

func (m *Migrator) SharedStatus(ctx context.Context) ([]MigrationStatus, error) {
	return m.status(ctx, SharedSchema, m.sharedDir)
}

func (m *Migrator) TenantStatus(ctx context.Context, tenantID string) ([]MigrationStatus, error) {
	return m.status(ctx, SchemaName(tenantID), m.tenantDir)
}

func (m *Migrator) up(ctx context.Context, schema, dir string) (int, error) {
	migrations, err := loadMigrations(dir)
	if err != nil {
		return 0, err
	}
	if err := m.ensureLedger(ctx, schema); err != nil {
		return 0, err
	}
	applied, err := m.appliedVersions(ctx, schema)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if err := m.apply(ctx, schema, mig); err != nil {
			return count, fmt.Errorf("migration %s on %s: %w", mig.Name, schema, err)
		}
		count++
	}
	return count, nil
}

func (m *Migrator) status(ctx context.Context, schema, dir string) ([]MigrationStatus, error) {
	migrations, err := loadMigrations(dir)
	if err != nil {
		return nil, err
	}
	if err := m.ensureLedger(ctx, schema); err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx, schema)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, done := applied[mig.Version]; done {
			st.Applied = true
			appliedAt := at
			st.AppliedAt = &appliedAt
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// loadMigrations reads a directory of numbered SQL files sorted by version.
// Files without a numeric NNN_ prefix are not migrations and are skipped.
func loadMigrations(dir string) ([]Migration, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("scan migrations in %s: %w", dir, err)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations directory %s: %w", dir, err)
	}

	var migrations []Migration
	for _, path := range paths {
		name := filepath.Base(path)
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		sql, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(sql)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (m *Migrator) ensureLedger(ctx context.Context, schema string) error {
	_, err := m.pool.Exec(ctx, fmt.Sprintf(`SET search_path TO %s;
CREATE TABLE IF NOT EXISTS _migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`, schema))
	if err != nil {
		return fmt.Errorf("ensure migration ledger in %s: %w", schema, err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context, schema string) (map[int]time.Time, error) {
	rows, err := m.pool.Query(ctx,
		fmt.Sprintf(`SELECT version, applied_at FROM %s._migrations`, schema))
	if err != nil {
		return nil, fmt.Errorf("read migration ledger in %s: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration ledger: %w", err)
		}
		applied[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration ledger: %w", err)
	}
	return applied, nil
}

// apply runs one migration in its own transaction with the target schema
// first on the search path, so tenant DDL lands in the tenant schema while
// still resolving shared tables.
func (m *Migrator) apply(ctx context.Context, schema string, mig Migration) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("SET search_path TO %s, %s, public", schema, SharedSchema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO _migrations (version, name) VALUES ($1, $2)",
		mig.Version, mig.Name); err != nil {
		return fmt.Errorf("record in ledger: %w", err)
	}
	return tx.Commit(ctx)
}
