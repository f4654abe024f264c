package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) Save(ctx context.Context, templateID uuid.UUID, snap *Snapshot) error {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO shared.template_snapshots (template_id, version, taken_at, data)
		 VALUES ($1, $2, $3, $4)`,
		templateID, snap.Version, snap.TakenAt, data)
	if err != nil {
		return fmt.Errorf("save snapshot v%d for template %s: %w", snap.Version, templateID, err)
	}
	return nil
}

func (r *RepoPG) Get(ctx context.Context, templateID uuid.UUID, version int) (*Snapshot, error) {
	return r.scanOne(ctx,
		`SELECT version, taken_at, data FROM shared.template_snapshots
		 WHERE template_id = $1 AND version = $2`, templateID, version)
}

func (r *RepoPG) Latest(ctx context.Context, templateID uuid.UUID) (*Snapshot, error) {
	return r.scanOne(ctx,
		`SELECT version, taken_at, data FROM shared.template_snapshots
		 WHERE template_id = $1 ORDER BY version DESC LIMIT 1`, templateID)
}

func (r *RepoPG) scanOne(ctx context.Context, q string, args ...any) (*Snapshot, error) {
	var snap Snapshot
	var raw []byte
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&snap.Version, &snap.TakenAt, &raw); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap.Data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot data: %w", err)
	}
	return &snap, nil
}
