package snapshot

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists snapshot documents keyed by template and version.
// Snapshots are write-once: there is no update path.
type Repository interface {
	Save(ctx context.Context, templateID uuid.UUID, snap *Snapshot) error
	Get(ctx context.Context, templateID uuid.UUID, version int) (*Snapshot, error)
	Latest(ctx context.Context, templateID uuid.UUID) (*Snapshot, error)
}
