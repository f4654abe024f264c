package run

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/haccare/simcare/internal/domain/activity"
)

// HistoryRecord is the debrief archive written when a run completes: the
// run's final state plus a frozen copy of its activity trail as it stood at
// completion. Later writes to the live activity log never touch it.
type HistoryRecord struct {
	RunID           uuid.UUID         `db:"run_id" json:"run_id"`
	TemplateID      uuid.UUID         `db:"template_id" json:"template_id"`
	Name            string            `db:"name" json:"name"`
	SnapshotVersion int               `db:"snapshot_version" json:"snapshot_version"`
	StartedBy       string            `db:"started_by" json:"started_by"`
	StartedAt       time.Time         `db:"started_at" json:"started_at"`
	EndedAt         time.Time         `db:"ended_at" json:"ended_at"`
	Activity        []*activity.Entry `db:"activity" json:"activity"`
	ArchivedAt      time.Time         `db:"archived_at" json:"archived_at"`
}

type HistoryRepository interface {
	Save(ctx context.Context, rec *HistoryRecord) error
	Get(ctx context.Context, runID uuid.UUID) (*HistoryRecord, error)
}
