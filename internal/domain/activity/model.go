package activity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lifecycle actions recorded in the activity trail.
const (
	ActionTemplateCreated  = "templateCreated"
	ActionSnapshotTaken    = "snapshotTaken"
	ActionRunLaunched      = "runLaunched"
	ActionRunReset         = "runReset"
	ActionRunCompleted     = "runCompleted"
	ActionBackupCreated    = "backupCreated"
	ActionBackupDownloaded = "backupDownloaded"
)

// Entry is one append-only activity record. There is deliberately no update
// or delete path anywhere in this package; audit integrity depends on it.
type Entry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
	Actor       string          `db:"actor" json:"actor"`
	Action      string          `db:"action" json:"action"`
	SubjectType string          `db:"subject_type" json:"subject_type"`
	SubjectID   uuid.UUID       `db:"subject_id" json:"subject_id"`
	Detail      json.RawMessage `db:"detail" json:"detail,omitempty"`
}
