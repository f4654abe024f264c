package activity

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

const activityCols = `id, occurred_at, actor, action, subject_type, subject_id, detail`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.OccurredAt, &e.Actor, &e.Action, &e.SubjectType, &e.SubjectID, &e.Detail)
	return &e, err
}

func (r *RepoPG) Append(ctx context.Context, e *Entry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO shared.activity_log (id, occurred_at, actor, action, subject_type, subject_id, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.OccurredAt, e.Actor, e.Action, e.SubjectType, e.SubjectID, e.Detail)
	if err != nil {
		return fmt.Errorf("append activity entry: %w", err)
	}
	return nil
}

func (r *RepoPG) ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return r.list(ctx,
		"WHERE subject_type = $1 AND subject_id = $2",
		[]any{subjectType, subjectID}, limit, offset)
}

func (r *RepoPG) ListByActor(ctx context.Context, actor string, limit, offset int) ([]*Entry, int, error) {
	return r.list(ctx, "WHERE actor = $1", []any{actor}, limit, offset)
}

func (r *RepoPG) List(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	return r.list(ctx, "", nil, limit, offset)
}

func (r *RepoPG) list(ctx context.Context, where string, args []any, limit, offset int) ([]*Entry, int, error) {
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM shared.activity_log %s", where)
	var total int
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activity entries: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM shared.activity_log %s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d",
		activityCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list activity entries: %w", err)
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan activity entry: %w", err)
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
