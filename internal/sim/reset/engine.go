// Package reset returns a live run to its baseline: every event collection
// is wiped, while stable collections, and with them every printed barcode,
// are left exactly as they were.
package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
)

// Result reports what one reset deleted. A reset of an already-clean run is
// a successful no-op with zero deletions.
type Result struct {
	EventRowsDeleted     int64            `json:"event_rows_deleted"`
	PerCollectionDeleted map[string]int64 `json:"per_collection_deleted"`
	ResetAt              time.Time        `json:"reset_at"`
}

type Engine struct {
	store rowstore.Store
	log   zerolog.Logger
}

func NewEngine(store rowstore.Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Reset deletes every row of the given event collections in the run's
// tenant, children first. Stable collections are never touched here; the
// entries are expected to be the registry's event set and anything else is
// refused outright rather than quietly deleted.
func (e *Engine) Reset(ctx context.Context, runTenant string, eventEntries []registry.Entry) (*Result, error) {
	for _, en := range eventEntries {
		if en.Kind != registry.KindEvent {
			return nil, fmt.Errorf("reset refused: %s is not an event collection", en.Name)
		}
	}

	schema := db.SchemaName(runTenant)
	res := &Result{
		PerCollectionDeleted: make(map[string]int64, len(eventEntries)),
		ResetAt:              time.Now().UTC(),
	}

	for _, en := range registry.DeletionOrdered(eventEntries) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := e.store.DeleteAll(ctx, schema, en.Name)
		if err != nil {
			return res, fmt.Errorf("reset %s: %w", en.Name, err)
		}
		res.PerCollectionDeleted[en.Name] = n
		res.EventRowsDeleted += n
	}

	e.log.Info().
		Str("tenant", runTenant).
		Int64("rows_deleted", res.EventRowsDeleted).
		Msg("run reset to baseline")

	return res, nil
}
