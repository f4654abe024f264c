// Package restore materializes a snapshot into a destination tenant in two
// ordered phases, remapping identifiers as it goes. Phase 1 handles the
// collections whose identifiers must be reminted (parents before children);
// phase 2 copies the rest, resolving references through the identifier map
// phase 1 built. One bad record never aborts a launch: failures are isolated
// per record and reported in the result's diagnostics.
package restore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
	"github.com/haccare/simcare/internal/sim/snapshot"
)

type Options struct {
	// PreserveStableIDs keeps stable-collection identifiers from the snapshot
	// instead of reminting them. Used by import so barcodes printed in the
	// source environment still scan in the destination.
	PreserveStableIDs bool
}

type Engine struct {
	store rowstore.Store
	log   zerolog.Logger
}

func NewEngine(store rowstore.Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Launch restores snap into the destination tenant. The entries are the
// enabled registry set; the engine partitions and orders them itself so the
// two-phase invariant cannot be broken by a caller. The returned result is
// populated even when err is non-nil (cancellation mid-restore), so callers
// can log what was done before discarding the tenant.
func (e *Engine) Launch(ctx context.Context, snap *snapshot.Snapshot, entries []registry.Entry, destTenant string, opts Options) (*Result, error) {
	schema := db.SchemaName(destTenant)
	res := newResult()
	idmap := NewIDMap()

	known := registry.ByName(entries)
	for _, name := range snap.Collections() {
		if _, ok := known[name]; !ok {
			res.addDiagnostic(name, "", CodeUnknownCollection,
				"collection captured in snapshot but absent or disabled in registry; skipped")
			e.log.Warn().Str("collection", name).Msg("snapshot collection not in registry, skipping")
		}
	}

	phase1 := registry.CreationOrder(registry.Filter(entries, func(en registry.Entry) bool {
		return en.RequiresIDRemap
	}))
	phase2 := registry.CreationOrder(registry.Filter(entries, func(en registry.Entry) bool {
		return !en.RequiresIDRemap
	}))

	// Phase 2 entries that some other phase 2 entry declares as parent get
	// their fresh identifiers recorded so children can resolve them.
	phase2Parents := make(map[string]bool)
	for _, en := range phase2 {
		if en.ParentCollection != "" && !known[en.ParentCollection].RequiresIDRemap {
			phase2Parents[en.ParentCollection] = true
		}
	}

	// Phase 1 completes in full, its mappings committed, before phase 2
	// begins. This ordering is the core correctness invariant.
	for _, en := range phase1 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e.restoreCollection(ctx, res, idmap, en, snap, schema, destTenant, opts, true)
	}
	for _, en := range phase2 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e.restoreCollection(ctx, res, idmap, en, snap, schema, destTenant, opts, phase2Parents[en.Name])
	}

	e.log.Info().
		Str("tenant", destTenant).
		Bool("success", res.Success).
		Int("tables", res.TablesRestored).
		Int("rows", res.TotalRowsRestored).
		Int("diagnostics", len(res.Diagnostics)).
		Msg("launch restore finished")

	return res, nil
}

func (e *Engine) restoreCollection(ctx context.Context, res *Result, idmap IDMap, en registry.Entry, snap *snapshot.Snapshot, schema, destTenant string, opts Options, recordMapping bool) {
	rows, ok := snap.Data[en.Name]
	if !ok {
		return
	}
	res.Expected[en.Name] = len(rows)
	res.PerCollectionCounts[en.Name] = 0

	// The destination column set comes from the live schema, never from an
	// assumption baked in here. A drifted schema is surfaced up front instead
	// of dying one record at a time.
	cols, err := e.store.Columns(ctx, schema, en.Name)
	if err != nil {
		res.addDiagnostic(en.Name, "", CodeSchemaDrift,
			fmt.Sprintf("cannot introspect destination table: %v", err))
		e.flagZeroRows(res, en.Name, len(rows))
		return
	}
	live := make(map[string]bool, len(cols))
	for _, c := range cols {
		live[c] = true
	}
	if len(rows) > 0 {
		if missing := missingFields(rows, live); len(missing) > 0 {
			res.addDiagnostic(en.Name, "", CodeSchemaDrift,
				fmt.Sprintf("snapshot fields absent from live schema: %s", strings.Join(missing, ", ")))
		}
	}

	preserve := opts.PreserveStableIDs && en.Kind == registry.KindStable
	restored := 0

	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}

		originalID := snapshot.RecordID(row)

		newRow := make(rowstore.Row, len(row))
		for c, v := range row {
			if live[c] {
				newRow[c] = v
			}
		}

		newID := originalID
		if !preserve {
			newID = uuid.NewString()
		}
		newRow[snapshot.IDField] = newID

		if en.CarriesTenantRef && live["tenant_id"] {
			newRow["tenant_id"] = destTenant
		}

		if skip := e.resolveRefs(res, idmap, en, row, newRow, originalID); skip {
			continue
		}

		if err := e.store.Insert(ctx, schema, en.Name, newRow); err != nil {
			res.addDiagnostic(en.Name, originalID, CodeInsertFailed, err.Error())
			e.log.Warn().
				Str("collection", en.Name).
				Str("original_id", originalID).
				Err(err).
				Msg("record insert failed, continuing")
			continue
		}

		restored++
		if recordMapping {
			idmap.Put(en.Name, originalID, newID)
		}
	}

	res.PerCollectionCounts[en.Name] = restored
	res.TotalRowsRestored += restored
	if restored > 0 {
		res.TablesRestored++
	}
	e.flagZeroRows(res, en.Name, len(rows))
}

// resolveRefs rewrites the record's relational fields through the identifier
// map. A reference whose mapping is missing skips the record with a
// diagnostic; it is never fatal.
func (e *Engine) resolveRefs(res *Result, idmap IDMap, en registry.Entry, row, newRow rowstore.Row, originalID string) (skip bool) {
	resolve := func(field, parentCollection string) bool {
		ref, present := row[field]
		if !present || ref == nil {
			return true
		}
		refID := fmt.Sprint(ref)
		if refID == "" {
			return true
		}
		mapped, ok := idmap.Resolve(parentCollection, refID)
		if !ok {
			res.addDiagnostic(en.Name, originalID, CodeDepMissing,
				fmt.Sprintf("%s %q has no mapping in %s", field, refID, parentCollection))
			return false
		}
		if _, inSchema := newRow[field]; inSchema {
			newRow[field] = mapped
		}
		return true
	}

	if en.ParentCollection != "" {
		if !resolve(en.ParentLinkField, en.ParentCollection) {
			return true
		}
	}
	if en.CarriesPatientRef && en.ParentCollection != "patients" {
		if !resolve("patient_id", "patients") {
			return true
		}
	}
	return false
}

// flagZeroRows surfaces the observed failure mode where per-record isolation
// swallowed every insert and the operation still looked successful.
func (e *Engine) flagZeroRows(res *Result, collection string, expected int) {
	if expected == 0 || res.PerCollectionCounts[collection] > 0 {
		return
	}
	res.Success = false
	res.addDiagnostic(collection, "", CodeZeroRows,
		fmt.Sprintf("snapshot contains %d rows but none were restored", expected))
	e.log.Error().
		Str("collection", collection).
		Int("expected", expected).
		Msg("zero rows restored for a non-empty collection")
}

func missingFields(rows []rowstore.Row, live map[string]bool) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for c := range row {
			if !live[c] {
				seen[c] = true
			}
		}
	}
	missing := make([]string, 0, len(seen))
	for c := range seen {
		missing = append(missing, c)
	}
	sort.Strings(missing)
	return missing
}
