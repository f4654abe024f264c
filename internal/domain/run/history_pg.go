package run

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haccare/simcare/internal/domain/activity"
)

type HistoryRepoPG struct {
	pool *pgxpool.Pool
}

func NewHistoryRepoPG(pool *pgxpool.Pool) *HistoryRepoPG {
	return &HistoryRepoPG{pool: pool}
}

// Save upserts so a completion retried after a partial failure replaces the
// earlier archive instead of erroring on the primary key.
func (hr *HistoryRepoPG) Save(ctx context.Context, rec *HistoryRecord) error {
	trail, err := json.Marshal(rec.Activity)
	if err != nil {
		return fmt.Errorf("marshal activity trail: %w", err)
	}
	_, err = hr.pool.Exec(ctx, `
		INSERT INTO shared.run_history (run_id, template_id, name, snapshot_version,
			started_by, started_at, ended_at, activity, archived_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (run_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			activity = EXCLUDED.activity,
			archived_at = EXCLUDED.archived_at`,
		rec.RunID, rec.TemplateID, rec.Name, rec.SnapshotVersion,
		rec.StartedBy, rec.StartedAt, rec.EndedAt, trail, rec.ArchivedAt)
	if err != nil {
		return fmt.Errorf("save run history: %w", err)
	}
	return nil
}

func (hr *HistoryRepoPG) Get(ctx context.Context, runID uuid.UUID) (*HistoryRecord, error) {
	var rec HistoryRecord
	var trail []byte
	err := hr.pool.QueryRow(ctx, `
		SELECT run_id, template_id, name, snapshot_version, started_by,
			started_at, ended_at, activity, archived_at
		FROM shared.run_history WHERE run_id = $1`, runID).
		Scan(&rec.RunID, &rec.TemplateID, &rec.Name, &rec.SnapshotVersion,
			&rec.StartedBy, &rec.StartedAt, &rec.EndedAt, &trail, &rec.ArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("get run history %s: %w", runID, err)
	}
	if err := json.Unmarshal(trail, &rec.Activity); err != nil {
		return nil, fmt.Errorf("decode activity trail: %w", err)
	}
	if rec.Activity == nil {
		rec.Activity = []*activity.Entry{}
	}
	return &rec, nil
}
