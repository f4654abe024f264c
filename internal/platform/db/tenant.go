package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"
	DBTxKey     contextKey = "db_tx"
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SharedSchema holds the platform tables (templates, runs, registry, activity)
// that are not tenant-scoped.
const SharedSchema = "shared"

func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c, defaultTenant)

			if !tenantIDPattern.MatchString(tenantID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			schema := SchemaName(tenantID)
			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, %s, public", schema, SharedSchema))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant resolution failed")
			}

			ctx = context.WithValue(ctx, TenantIDKey, tenantID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)
			c.Set("db", conn)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context, defaultTenant string) string {
	// 1. Check JWT claim (set by auth middleware)
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}

	// 2. Check X-Tenant-ID header
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}

	// 3. Check query parameter
	if tid := c.QueryParam("tenant_id"); tid != "" {
		return tid
	}

	return defaultTenant
}

// SchemaName returns the Postgres schema backing a tenant.
func SchemaName(tenantID string) string {
	return "tenant_" + tenantID
}

// AllocateTenantID mints a tenant identifier for a newly launched run or an
// imported template. Each run gets its own tenant so concurrent runs from one
// template never collide.
func AllocateTenantID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ConnFromContext retrieves the tenant-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// TxFromContext retrieves an in-flight transaction from context, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the connection carried by ctx and returns a
// derived context carrying the transaction. The caller owns commit/rollback.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, fmt.Errorf("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// CreateTenantSchema creates the schema backing a tenant and brings it up to
// date with the tenant migration set. An empty migrationsDir creates a bare
// schema, which tests and ad-hoc tooling use.
func CreateTenantSchema(ctx context.Context, pool *pgxpool.Pool, tenantID string, migrationsDir string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}

	schema := SchemaName(tenantID)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, "", migrationsDir)
		if _, err := migrator.UpTenant(ctx, tenantID); err != nil {
			return fmt.Errorf("migrate tenant %s: %w", tenantID, err)
		}
	}

	return nil
}

// Provisioner creates and drops tenant schemas with a fixed pool and
// migrations directory. Domain services hold it behind a small interface
// so tests can substitute an in-memory fake.
type Provisioner struct {
	Pool          *pgxpool.Pool
	MigrationsDir string
}

func (p *Provisioner) CreateTenant(ctx context.Context, tenantID string) error {
	return CreateTenantSchema(ctx, p.Pool, tenantID, p.MigrationsDir)
}

func (p *Provisioner) DropTenant(ctx context.Context, tenantID string) error {
	return DropTenantSchema(ctx, p.Pool, tenantID)
}

// DropTenantSchema removes a tenant schema and everything in it. Used to
// discard the destination tenant of a failed or cancelled launch.
func DropTenantSchema(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	_, err := pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", SchemaName(tenantID)))
	if err != nil {
		return fmt.Errorf("drop schema for %s: %w", tenantID, err)
	}
	return nil
}
