package template

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const templateCols = `id, tenant_id, name, description, status,
	default_duration_minutes, snapshot_version, snapshot_taken_at,
	created_by, created_at, updated_at`

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &t.Status,
		&t.DefaultDurationMinutes, &t.SnapshotVersion, &t.SnapshotTakenAt,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *RepoPG) Create(ctx context.Context, t *Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shared.templates (id, tenant_id, name, description, status,
			default_duration_minutes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.TenantID, t.Name, t.Description, t.Status,
		t.DefaultDurationMinutes, t.CreatedBy)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx,
		`SELECT `+templateCols+` FROM shared.templates WHERE id = $1`, id))
}

func (r *RepoPG) Update(ctx context.Context, t *Template) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE shared.templates SET name=$2, description=$3, status=$4,
			default_duration_minutes=$5, snapshot_version=$6, snapshot_taken_at=$7,
			updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.Status,
		t.DefaultDurationMinutes, t.SnapshotVersion, t.SnapshotTakenAt)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

func (r *RepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Template, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM shared.templates %s", where)
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM shared.templates %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		templateCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var items []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
