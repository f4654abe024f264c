package template

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusDraft    = "draft"
	StatusReady    = "ready"
	StatusArchived = "archived"
)

// Template is a reusable scenario definition. Its clinical content lives in
// the template's own tenant schema; the row here carries metadata and the
// pointer to the latest captured snapshot.
type Template struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	TenantID               string     `db:"tenant_id" json:"tenant_id"`
	Name                   string     `db:"name" json:"name"`
	Description            *string    `db:"description" json:"description,omitempty"`
	Status                 string     `db:"status" json:"status"`
	DefaultDurationMinutes int        `db:"default_duration_minutes" json:"default_duration_minutes"`
	SnapshotVersion        int        `db:"snapshot_version" json:"snapshot_version"`
	SnapshotTakenAt        *time.Time `db:"snapshot_taken_at" json:"snapshot_taken_at,omitempty"`
	CreatedBy              string     `db:"created_by" json:"created_by"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// HasSnapshot reports whether at least one snapshot has been captured.
func (t *Template) HasSnapshot() bool {
	return t.SnapshotVersion > 0
}

func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch t.Status {
	case StatusDraft, StatusReady, StatusArchived:
	default:
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.DefaultDurationMinutes < 0 {
		return fmt.Errorf("default_duration_minutes must not be negative")
	}
	return nil
}
