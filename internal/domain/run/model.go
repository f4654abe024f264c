package run

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Run is a live training session materialized from a template snapshot
// into its own tenant schema.
type Run struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	TemplateID      uuid.UUID  `db:"template_id" json:"template_id"`
	SnapshotVersion int        `db:"snapshot_version" json:"snapshot_version"`
	TenantID        string     `db:"tenant_id" json:"tenant_id"`
	Name            string     `db:"name" json:"name"`
	Status          string     `db:"status" json:"status"`
	StartedBy       string     `db:"started_by" json:"started_by"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	EndedAt         *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (r *Run) Validate() error {
	switch r.Status {
	case StatusActive, StatusPaused, StatusCompleted:
	default:
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.TemplateID == uuid.Nil {
		return fmt.Errorf("template_id is required")
	}
	return nil
}

// Ended reports whether the run has finished. Ended runs are read-only:
// no reset, pause or resume.
func (r *Run) Ended() bool {
	return r.Status == StatusCompleted
}
