package reset

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
)

func eventEntries() []registry.Entry {
	return registry.Filter(registry.Defaults(), func(e registry.Entry) bool {
		return e.Enabled && e.Kind == registry.KindEvent
	})
}

func seedRun(t *testing.T, store *rowstore.Mem, schema string) {
	t.Helper()
	ctx := context.Background()

	store.DefineTable(schema, "patients", "id", "tenant_id", "barcode_id")
	store.DefineTable(schema, "patient_vitals", "id", "tenant_id", "patient_id")
	store.DefineTable(schema, "medication_administrations", "id", "tenant_id", "medication_id")
	store.DefineTable(schema, "patient_notes", "id", "tenant_id", "patient_id")
	store.DefineTable(schema, "patient_alerts", "id", "tenant_id", "patient_id")
	store.DefineTable(schema, "bowel_records", "id", "tenant_id", "patient_id")
	store.DefineTable(schema, "doctors_orders", "id", "tenant_id", "patient_id")
	store.DefineTable(schema, "lab_results", "id", "tenant_id", "panel_id")

	for i := 0; i < 9; i++ {
		_ = store.Insert(ctx, schema, "patients", rowstore.Row{
			"id": fmt.Sprintf("p%d", i), "barcode_id": fmt.Sprintf("PAT-%04d", i),
		})
	}
	for i := 0; i < 29; i++ {
		_ = store.Insert(ctx, schema, "patient_vitals", rowstore.Row{
			"id": fmt.Sprintf("v%d", i), "patient_id": "p0",
		})
	}
	for i := 0; i < 5; i++ {
		_ = store.Insert(ctx, schema, "lab_results", rowstore.Row{
			"id": fmt.Sprintf("lr%d", i), "panel_id": "lp0",
		})
	}
}

func TestReset_DeletesOnlyEventCollections(t *testing.T) {
	ctx := context.Background()
	store := rowstore.NewMem()
	seedRun(t, store, "tenant_run1")

	e := NewEngine(store, zerolog.Nop())
	res, err := e.Reset(ctx, "run1", eventEntries())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if res.EventRowsDeleted != 34 {
		t.Errorf("expected 34 deleted, got %d", res.EventRowsDeleted)
	}
	if res.PerCollectionDeleted["patient_vitals"] != 29 {
		t.Errorf("vitals deleted = %d, want 29", res.PerCollectionDeleted["patient_vitals"])
	}

	// Stable entities and their identifiers are untouched.
	patients, _ := store.Select(ctx, "tenant_run1", "patients", rowstore.Filter{})
	if len(patients) != 9 {
		t.Fatalf("expected 9 patients after reset, got %d", len(patients))
	}
	for _, p := range patients {
		if p["barcode_id"] == nil {
			t.Error("patient barcode lost on reset")
		}
	}

	if n, _ := store.Count(ctx, "tenant_run1", "patient_vitals", rowstore.Filter{}); n != 0 {
		t.Errorf("expected 0 vitals after reset, got %d", n)
	}
}

func TestReset_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := rowstore.NewMem()
	seedRun(t, store, "tenant_run1")

	e := NewEngine(store, zerolog.Nop())
	if _, err := e.Reset(ctx, "run1", eventEntries()); err != nil {
		t.Fatalf("first reset: %v", err)
	}

	res, err := e.Reset(ctx, "run1", eventEntries())
	if err != nil {
		t.Fatalf("second reset must be a no-op, got error: %v", err)
	}
	if res.EventRowsDeleted != 0 {
		t.Errorf("second reset deleted %d rows, want 0", res.EventRowsDeleted)
	}
}

func TestReset_RefusesStableCollections(t *testing.T) {
	store := rowstore.NewMem()
	seedRun(t, store, "tenant_run1")

	entries := append(eventEntries(), registry.Entry{
		Name: "patients", Kind: registry.KindStable, DeletionOrder: 10,
		BarcodeField: "barcode_id", Enabled: true,
	})

	e := NewEngine(store, zerolog.Nop())
	if _, err := e.Reset(context.Background(), "run1", entries); err == nil {
		t.Fatal("expected refusal when a stable collection is in the delete set")
	}

	// Nothing was deleted.
	if n, _ := store.Count(context.Background(), "tenant_run1", "patient_vitals", rowstore.Filter{}); n != 29 {
		t.Errorf("refused reset still deleted rows: %d vitals left", n)
	}
}

func TestReset_ChildrenDeletedFirst(t *testing.T) {
	store := rowstore.NewMem()
	seedRun(t, store, "tenant_run1")

	var order []string
	// Track deletion order through the hook-free store by wrapping DeleteAll
	// calls with a recording store.
	rec := &recordingStore{Mem: store, order: &order}

	e := NewEngine(rec, zerolog.Nop())
	if _, err := e.Reset(context.Background(), "run1", eventEntries()); err != nil {
		t.Fatalf("reset: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["lab_results"] > pos["patient_vitals"] {
		t.Errorf("lab_results (child tier) deleted after patient_vitals: %v", order)
	}
}

type recordingStore struct {
	*rowstore.Mem
	order *[]string
}

func (r *recordingStore) DeleteAll(ctx context.Context, schema, table string) (int64, error) {
	*r.order = append(*r.order, table)
	return r.Mem.DeleteAll(ctx, schema, table)
}
