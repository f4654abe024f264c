package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
)

// BuildOptions narrows a capture. When From/To are set, collections are
// filtered on TimeField (created_at unless overridden) for partial backups.
type BuildOptions struct {
	From      *time.Time
	To        *time.Time
	TimeField string
}

type Builder struct {
	store rowstore.Store
	log   zerolog.Logger
}

func NewBuilder(store rowstore.Store, log zerolog.Logger) *Builder {
	return &Builder{store: store, log: log}
}

// Build captures every given collection from the template tenant into a new
// snapshot document. Any single collection query failure aborts the whole
// build: a snapshot silently missing a collection is worse than no snapshot,
// because a later restore would quietly materialize an incomplete run.
func (b *Builder) Build(ctx context.Context, tenantID string, entries []registry.Entry, version int, opts BuildOptions) (*Snapshot, error) {
	schema := db.SchemaName(tenantID)

	timeField := opts.TimeField
	if timeField == "" {
		timeField = "created_at"
	}
	filter := rowstore.Filter{}
	if opts.From != nil || opts.To != nil {
		filter = rowstore.Filter{TimeField: timeField, From: opts.From, To: opts.To}
	}

	snap := &Snapshot{
		Version: version,
		TakenAt: time.Now().UTC(),
		Data:    make(map[string][]rowstore.Row, len(entries)),
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := b.store.Select(ctx, schema, e.Name, filter)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", e.Name, err)
		}
		snap.Data[e.Name] = rows

		b.log.Debug().
			Str("tenant", tenantID).
			Str("collection", e.Name).
			Int("rows", len(rows)).
			Msg("collection captured")
	}

	b.log.Info().
		Str("tenant", tenantID).
		Int("version", version).
		Int("collections", len(entries)).
		Int("rows", snap.TotalRows()).
		Msg("snapshot built")

	return snap, nil
}
