package run

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

const runCols = `id, template_id, snapshot_version, tenant_id, name, status,
	started_by, started_at, ended_at, created_at, updated_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.TemplateID, &r.SnapshotVersion, &r.TenantID, &r.Name,
		&r.Status, &r.StartedBy, &r.StartedAt, &r.EndedAt, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (rp *RepoPG) Create(ctx context.Context, r *Run) error {
	_, err := rp.pool.Exec(ctx, `
		INSERT INTO shared.runs (id, template_id, snapshot_version, tenant_id,
			name, status, started_by, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.TemplateID, r.SnapshotVersion, r.TenantID,
		r.Name, r.Status, r.StartedBy, r.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (rp *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	return scanRun(rp.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM shared.runs WHERE id = $1`, id))
}

func (rp *RepoPG) Update(ctx context.Context, r *Run) error {
	_, err := rp.pool.Exec(ctx, `
		UPDATE shared.runs SET name=$2, status=$3, ended_at=$4, updated_at=NOW()
		WHERE id = $1`,
		r.ID, r.Name, r.Status, r.EndedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (rp *RepoPG) List(ctx context.Context, templateID uuid.UUID, status string, limit, offset int) ([]*Run, int, error) {
	where := ""
	args := []any{}
	if templateID != uuid.Nil {
		args = append(args, templateID)
		where = fmt.Sprintf("WHERE template_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		if where == "" {
			where = fmt.Sprintf("WHERE status = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM shared.runs %s", where)
	if err := rp.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM shared.runs %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d",
		runCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := rp.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var items []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (rp *RepoPG) CountByTemplate(ctx context.Context, templateID uuid.UUID) (int, error) {
	var n int
	err := rp.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM shared.runs WHERE template_id = $1`, templateID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count runs for template: %w", err)
	}
	return n, nil
}
