package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
)

func seedTenant(t *testing.T, store *rowstore.Mem, schema string) {
	t.Helper()
	store.DefineTable(schema, "patients", "id", "tenant_id", "barcode_id", "full_name", "created_at")
	store.DefineTable(schema, "patient_medications", "id", "tenant_id", "patient_id", "barcode_id", "drug_name", "created_at")
	store.DefineTable(schema, "patient_vitals", "id", "tenant_id", "patient_id", "heart_rate", "created_at")

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := store.Insert(ctx, schema, "patients", rowstore.Row{
			"id": fmt.Sprintf("p%d", i), "tenant_id": "hospital_a",
			"barcode_id": fmt.Sprintf("PAT-%04d", i), "full_name": fmt.Sprintf("Patient %d", i),
			"created_at": base,
		}); err != nil {
			t.Fatalf("seed patient: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := store.Insert(ctx, schema, "patient_medications", rowstore.Row{
			"id": fmt.Sprintf("m%d", i), "tenant_id": "hospital_a", "patient_id": "p0",
			"barcode_id": fmt.Sprintf("MED-%04d", i), "drug_name": "amoxicillin",
			"created_at": base,
		}); err != nil {
			t.Fatalf("seed medication: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := store.Insert(ctx, schema, "patient_vitals", rowstore.Row{
			"id": fmt.Sprintf("v%d", i), "tenant_id": "hospital_a", "patient_id": "p1",
			"heart_rate": 70 + i, "created_at": base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("seed vitals: %v", err)
		}
	}
}

func testEntries() []registry.Entry {
	return []registry.Entry{
		{Name: "patients", Kind: registry.KindStable, CarriesTenantRef: true,
			RequiresIDRemap: true, DeletionOrder: 10, BarcodeField: "barcode_id", Enabled: true},
		{Name: "patient_medications", Kind: registry.KindStable, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			RequiresIDRemap: true, DeletionOrder: 8, BarcodeField: "barcode_id", Enabled: true},
		{Name: "patient_vitals", Kind: registry.KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 5, Enabled: true},
	}
}

func TestBuild_CapturesAllCollections(t *testing.T) {
	store := rowstore.NewMem()
	seedTenant(t, store, "tenant_hospital_a")

	b := NewBuilder(store, zerolog.Nop())
	snap, err := b.Build(context.Background(), "hospital_a", testEntries(), 1, BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if snap.Version != 1 {
		t.Errorf("expected version 1, got %d", snap.Version)
	}
	if snap.Count("patients") != 3 {
		t.Errorf("expected 3 patients, got %d", snap.Count("patients"))
	}
	if snap.Count("patient_medications") != 2 {
		t.Errorf("expected 2 medications, got %d", snap.Count("patient_medications"))
	}
	if snap.Count("patient_vitals") != 4 {
		t.Errorf("expected 4 vitals, got %d", snap.Count("patient_vitals"))
	}
	if snap.TotalRows() != 9 {
		t.Errorf("expected 9 total rows, got %d", snap.TotalRows())
	}

	// Original identifiers and raw FK values are preserved verbatim.
	med := snap.Data["patient_medications"][0]
	if med["patient_id"] != "p0" {
		t.Errorf("raw foreign key not preserved: %v", med["patient_id"])
	}
}

func TestBuild_AbortsOnCollectionFailure(t *testing.T) {
	store := rowstore.NewMem()
	seedTenant(t, store, "tenant_hospital_a")

	entries := append(testEntries(), registry.Entry{
		Name: "ghost_collection", Kind: registry.KindEvent, DeletionOrder: 3, Enabled: true,
	})

	b := NewBuilder(store, zerolog.Nop())
	_, err := b.Build(context.Background(), "hospital_a", entries, 1, BuildOptions{})
	if err == nil {
		t.Fatal("expected build to abort when one collection query fails")
	}
}

func TestBuild_TimeWindow(t *testing.T) {
	store := rowstore.NewMem()
	seedTenant(t, store, "tenant_hospital_a")

	from := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	b := NewBuilder(store, zerolog.Nop())
	snap, err := b.Build(context.Background(), "hospital_a", testEntries(), 2, BuildOptions{From: &from, To: &to})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if snap.Count("patient_vitals") != 2 {
		t.Errorf("expected 2 vitals in window, got %d", snap.Count("patient_vitals"))
	}
}

func TestBuild_Cancelled(t *testing.T) {
	store := rowstore.NewMem()
	seedTenant(t, store, "tenant_hospital_a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(store, zerolog.Nop())
	if _, err := b.Build(ctx, "hospital_a", testEntries(), 1, BuildOptions{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestVerify_DanglingParent(t *testing.T) {
	snap := &Snapshot{
		Data: map[string][]rowstore.Row{
			"patients": {{"id": "p0"}},
			"patient_medications": {
				{"id": "m0", "patient_id": "p0"},
				{"id": "m1", "patient_id": "p9"}, // captured mid-edit
			},
		},
	}

	dangling := Verify(snap, testEntries())
	if len(dangling) != 1 {
		t.Fatalf("expected 1 dangling reference, got %d", len(dangling))
	}
	d := dangling[0]
	if d.Collection != "patient_medications" || d.RecordID != "m1" || d.MissingID != "p9" {
		t.Errorf("unexpected dangling report: %+v", d)
	}
}

func TestVerify_Clean(t *testing.T) {
	snap := &Snapshot{
		Data: map[string][]rowstore.Row{
			"patients":            {{"id": "p0"}},
			"patient_medications": {{"id": "m0", "patient_id": "p0"}},
			"patient_vitals":      {{"id": "v0", "patient_id": "p0"}},
		},
	}
	if dangling := Verify(snap, testEntries()); len(dangling) != 0 {
		t.Errorf("expected no dangling references, got %v", dangling)
	}
}

func TestRecordID(t *testing.T) {
	if id := RecordID(rowstore.Row{"id": "abc"}); id != "abc" {
		t.Errorf("expected abc, got %s", id)
	}
	if id := RecordID(rowstore.Row{}); id != "" {
		t.Errorf("expected empty id, got %s", id)
	}
}
