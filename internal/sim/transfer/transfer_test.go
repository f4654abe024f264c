package transfer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/domain/activity"
	"github.com/haccare/simcare/internal/domain/template"
	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
	"github.com/haccare/simcare/internal/sim/restore"
	"github.com/haccare/simcare/internal/sim/snapshot"
)

func testEntries() []registry.Entry {
	return []registry.Entry{
		{Name: "patients", Category: "clinical", Kind: registry.KindStable,
			CarriesTenantRef: true, RequiresIDRemap: true, DeletionOrder: 10,
			BarcodeField: "barcode_id", Enabled: true},
		{Name: "patient_vitals", Category: "clinical", Kind: registry.KindEvent,
			CarriesTenantRef: true, CarriesPatientRef: true,
			ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 5, Enabled: true},
	}
}

func testPackage() *Package {
	snap := &snapshot.Snapshot{
		Version: 3,
		TakenAt: time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC),
		Data:    make(map[string][]rowstore.Row),
	}
	for i := 0; i < 2; i++ {
		snap.Data["patients"] = append(snap.Data["patients"], rowstore.Row{
			"id": fmt.Sprintf("p%d", i), "tenant_id": "tmpl_src",
			"barcode_id": fmt.Sprintf("PT-%04d", i),
		})
	}
	snap.Data["patient_vitals"] = []rowstore.Row{
		{"id": "v0", "tenant_id": "tmpl_src", "patient_id": "p0", "heart_rate": 92},
	}
	return &Package{
		ExportVersion: ExportVersion,
		ExportedAt:    time.Date(2026, 5, 12, 9, 5, 0, 0, time.UTC),
		ExportedBy:    "alice",
		Template:      TemplateMeta{Name: "ED Sepsis", SnapshotVersion: 3, DefaultDurationMinutes: 90},
		Snapshot:      snap,
	}
}

func TestValidate_CleanPackage(t *testing.T) {
	rep := Validate(testPackage(), testEntries())
	if !rep.Valid {
		t.Fatalf("expected valid package, got errors %v", rep.Errors)
	}
	if len(rep.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", rep.Warnings)
	}
}

func TestValidate_WrongVersion(t *testing.T) {
	pkg := testPackage()
	pkg.ExportVersion = "2.0"
	rep := Validate(pkg, testEntries())
	if rep.Valid {
		t.Fatal("expected invalid package")
	}
}

func TestValidate_NoSnapshot(t *testing.T) {
	pkg := testPackage()
	pkg.Snapshot = nil
	rep := Validate(pkg, testEntries())
	if rep.Valid {
		t.Fatal("expected invalid package")
	}
}

func TestValidate_NoPatients(t *testing.T) {
	pkg := testPackage()
	delete(pkg.Snapshot.Data, "patients")
	pkg.Snapshot.Data["patient_vitals"] = nil
	rep := Validate(pkg, testEntries())
	if rep.Valid {
		t.Fatal("expected invalid package without patients")
	}
}

func TestValidate_MissingBarcodeWarns(t *testing.T) {
	pkg := testPackage()
	delete(pkg.Snapshot.Data["patients"][0], "barcode_id")
	rep := Validate(pkg, testEntries())
	if !rep.Valid {
		t.Fatalf("missing barcode should warn, not fail: %v", rep.Errors)
	}
	if len(rep.Warnings) == 0 || !strings.Contains(rep.Warnings[0], "barcode_id") {
		t.Errorf("expected barcode warning, got %v", rep.Warnings)
	}
}

func TestValidate_DanglingReferenceWarns(t *testing.T) {
	pkg := testPackage()
	pkg.Snapshot.Data["patient_vitals"] = append(pkg.Snapshot.Data["patient_vitals"],
		rowstore.Row{"id": "v-ghost", "patient_id": "p-missing"})
	rep := Validate(pkg, testEntries())
	if !rep.Valid {
		t.Fatalf("dangling references should warn, not fail: %v", rep.Errors)
	}
	found := false
	for _, w := range rep.Warnings {
		if strings.Contains(w, "p-missing") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected dangling reference warning, got %v", rep.Warnings)
	}
}

func TestValidate_UnknownCollectionWarns(t *testing.T) {
	pkg := testPackage()
	pkg.Snapshot.Data["legacy_handovers"] = []rowstore.Row{{"id": "h0"}}
	rep := Validate(pkg, testEntries())
	if !rep.Valid {
		t.Fatalf("unknown collections should warn, not fail: %v", rep.Errors)
	}
	found := false
	for _, w := range rep.Warnings {
		if strings.Contains(w, "legacy_handovers") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown collection warning, got %v", rep.Warnings)
	}
}

func TestValidate_RecordWithoutID(t *testing.T) {
	pkg := testPackage()
	pkg.Snapshot.Data["patients"] = append(pkg.Snapshot.Data["patients"], rowstore.Row{"barcode_id": "PT-9999"})
	rep := Validate(pkg, testEntries())
	if rep.Valid {
		t.Fatal("expected invalid package for record without identifier")
	}
}

func TestReadWritePackage_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePackage(&buf, testPackage()); err != nil {
		t.Fatalf("WritePackage: %v", err)
	}
	got, err := ReadPackage(&buf)
	if err != nil {
		t.Fatalf("ReadPackage: %v", err)
	}
	if got.Template.Name != "ED Sepsis" || got.Snapshot.Count("patients") != 2 {
		t.Errorf("round trip lost data: %+v", got.Template)
	}
}

func TestReadPackage_Truncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePackage(&buf, testPackage()); err != nil {
		t.Fatalf("WritePackage: %v", err)
	}
	truncated := buf.String()[:buf.Len()/2]
	if _, err := ReadPackage(strings.NewReader(truncated)); err == nil {
		t.Fatal("expected error reading a truncated package")
	}
}

func TestReadPackage_UnknownField(t *testing.T) {
	doc := `{"export_version":"1.0","surprise":true}`
	if _, err := ReadPackage(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

// -- service fixtures --

type mockTemplateRepo struct {
	templates map[uuid.UUID]*template.Template
	createErr error
}

func (m *mockTemplateRepo) Create(ctx context.Context, t *template.Template) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.templates[t.ID] = t
	return nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*template.Template, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s not found", id)
	}
	return t, nil
}

func (m *mockTemplateRepo) Update(ctx context.Context, t *template.Template) error {
	m.templates[t.ID] = t
	return nil
}

func (m *mockTemplateRepo) List(ctx context.Context, status string, limit, offset int) ([]*template.Template, int, error) {
	return nil, 0, nil
}

type mockSnapRepo struct {
	snaps map[string]*snapshot.Snapshot
}

func (m *mockSnapRepo) key(id uuid.UUID, v int) string { return fmt.Sprintf("%s/%d", id, v) }

func (m *mockSnapRepo) Save(ctx context.Context, templateID uuid.UUID, snap *snapshot.Snapshot) error {
	m.snaps[m.key(templateID, snap.Version)] = snap
	return nil
}

func (m *mockSnapRepo) Get(ctx context.Context, templateID uuid.UUID, version int) (*snapshot.Snapshot, error) {
	s, ok := m.snaps[m.key(templateID, version)]
	if !ok {
		return nil, fmt.Errorf("snapshot not found")
	}
	return s, nil
}

func (m *mockSnapRepo) Latest(ctx context.Context, templateID uuid.UUID) (*snapshot.Snapshot, error) {
	var best *snapshot.Snapshot
	for v := 1; v < 100; v++ {
		if s, ok := m.snaps[m.key(templateID, v)]; ok {
			best = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no snapshots")
	}
	return best, nil
}

type mockRegistryRepo struct {
	entries []registry.Entry
}

func (m *mockRegistryRepo) List(ctx context.Context) ([]registry.Entry, error) {
	return append([]registry.Entry(nil), m.entries...), nil
}

func (m *mockRegistryRepo) Upsert(ctx context.Context, e registry.Entry) error { return nil }

func (m *mockRegistryRepo) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return nil
}

func (m *mockRegistryRepo) Count(ctx context.Context) (int, error) { return len(m.entries), nil }

type mockActivityRepo struct {
	entries []*activity.Entry
}

func (m *mockActivityRepo) Append(ctx context.Context, e *activity.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockActivityRepo) ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit, offset int) ([]*activity.Entry, int, error) {
	return nil, 0, nil
}

func (m *mockActivityRepo) ListByActor(ctx context.Context, actor string, limit, offset int) ([]*activity.Entry, int, error) {
	return nil, 0, nil
}

func (m *mockActivityRepo) List(ctx context.Context, limit, offset int) ([]*activity.Entry, int, error) {
	return m.entries, len(m.entries), nil
}

type tableProvisioner struct {
	store   *rowstore.Mem
	tables  map[string][]string
	created []string
	dropped []string
}

func (p *tableProvisioner) CreateTenant(ctx context.Context, tenantID string) error {
	schema := db.SchemaName(tenantID)
	for table, cols := range p.tables {
		p.store.DefineTable(schema, table, cols...)
	}
	p.created = append(p.created, tenantID)
	return nil
}

func (p *tableProvisioner) DropTenant(ctx context.Context, tenantID string) error {
	p.dropped = append(p.dropped, tenantID)
	return nil
}

type fixture struct {
	svc      *Service
	tmplRepo *mockTemplateRepo
	snapRepo *mockSnapRepo
	store    *rowstore.Mem
	tenants  *tableProvisioner
	activity *mockActivityRepo
}

func newFixture(t *testing.T, withTables bool) *fixture {
	t.Helper()
	log := zerolog.Nop()

	store := rowstore.NewMem()
	tables := map[string][]string{}
	if withTables {
		tables = map[string][]string{
			"patients":       {"id", "tenant_id", "barcode_id", "created_at"},
			"patient_vitals": {"id", "tenant_id", "patient_id", "heart_rate", "created_at"},
		}
	}
	tenants := &tableProvisioner{store: store, tables: tables}
	tmplRepo := &mockTemplateRepo{templates: make(map[uuid.UUID]*template.Template)}
	snapRepo := &mockSnapRepo{snaps: make(map[string]*snapshot.Snapshot)}
	actRepo := &mockActivityRepo{}

	svc := NewService(tmplRepo, snapRepo,
		registry.NewService(&mockRegistryRepo{entries: testEntries()}, log),
		restore.NewEngine(store, log), tenants,
		activity.NewService(actRepo, log), log)

	return &fixture{svc: svc, tmplRepo: tmplRepo, snapRepo: snapRepo, store: store, tenants: tenants, activity: actRepo}
}

func TestExport(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	desc := "sepsis drill"
	tmpl := &template.Template{
		ID: uuid.New(), TenantID: "tmpl_src", Name: "ED Sepsis",
		Description: &desc, Status: template.StatusReady,
		DefaultDurationMinutes: 90, SnapshotVersion: 3,
	}
	f.tmplRepo.templates[tmpl.ID] = tmpl
	f.snapRepo.snaps[f.snapRepo.key(tmpl.ID, 3)] = testPackage().Snapshot

	pkg, err := f.svc.Export(ctx, tmpl.ID, "alice")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if pkg.ExportVersion != ExportVersion {
		t.Errorf("expected export version %q, got %q", ExportVersion, pkg.ExportVersion)
	}
	if pkg.Template.Name != "ED Sepsis" || pkg.Template.SnapshotVersion != 3 {
		t.Errorf("template meta not carried: %+v", pkg.Template)
	}
	if pkg.Snapshot.Count("patients") != 2 {
		t.Errorf("expected 2 patients in export, got %d", pkg.Snapshot.Count("patients"))
	}
	if len(f.activity.entries) != 1 || f.activity.entries[0].Action != activity.ActionBackupCreated {
		t.Errorf("expected backupCreated activity, got %v", f.activity.entries)
	}
}

func TestExport_NoSnapshot(t *testing.T) {
	f := newFixture(t, true)

	tmpl := &template.Template{ID: uuid.New(), TenantID: "tmpl_src", Name: "Empty", Status: template.StatusDraft}
	f.tmplRepo.templates[tmpl.ID] = tmpl

	if _, err := f.svc.Export(context.Background(), tmpl.ID, "alice"); err == nil {
		t.Fatal("expected error exporting a template without snapshots")
	}
}

func TestImport(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tmpl, result, err := f.svc.Import(ctx, testPackage(), "bob", ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if tmpl.Status != template.StatusReady || tmpl.SnapshotVersion != 1 {
		t.Errorf("imported template should be ready at version 1, got %+v", tmpl)
	}
	if !result.Success || result.TotalRowsRestored != 3 {
		t.Errorf("expected 3 rows restored, got success=%v rows=%d", result.Success, result.TotalRowsRestored)
	}

	schema := db.SchemaName(tmpl.TenantID)
	patients, err := f.store.Select(ctx, schema, "patients", rowstore.Filter{})
	if err != nil {
		t.Fatalf("select patients: %v", err)
	}
	for _, p := range patients {
		if id, _ := p["id"].(string); id == "p0" || id == "p1" {
			t.Errorf("patient id should be reminted by default, got %s", id)
		}
	}

	if _, err := f.snapRepo.Get(ctx, tmpl.ID, 1); err != nil {
		t.Errorf("imported snapshot not saved as version 1: %v", err)
	}
}

func TestImport_PreserveStableIDs(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tmpl, _, err := f.svc.Import(ctx, testPackage(), "bob", ImportOptions{PreserveStableIDs: true})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	schema := db.SchemaName(tmpl.TenantID)
	patients, _ := f.store.Select(ctx, schema, "patients", rowstore.Filter{})
	ids := map[string]bool{}
	for _, p := range patients {
		id, _ := p["id"].(string)
		ids[id] = true
	}
	if !ids["p0"] || !ids["p1"] {
		t.Errorf("expected stable ids preserved, got %v", ids)
	}

	vitals, _ := f.store.Select(ctx, schema, "patient_vitals", rowstore.Filter{})
	if len(vitals) != 1 {
		t.Fatalf("expected 1 vital, got %d", len(vitals))
	}
	if vitals[0]["patient_id"] != "p0" {
		t.Errorf("vital should still reference p0, got %v", vitals[0]["patient_id"])
	}
	if vitals[0]["id"] == "v0" {
		t.Error("event identifiers are reminted even in preserve mode")
	}
}

func TestImport_InvalidPackage(t *testing.T) {
	f := newFixture(t, true)

	pkg := testPackage()
	pkg.Snapshot = nil
	if _, _, err := f.svc.Import(context.Background(), pkg, "bob", ImportOptions{}); err == nil {
		t.Fatal("expected import failure for invalid package")
	}
	if len(f.tenants.created) != 0 {
		t.Error("no tenant should be provisioned for an invalid package")
	}
}

func TestImport_FailedRestoreDropsTenant(t *testing.T) {
	f := newFixture(t, false)

	_, result, err := f.svc.Import(context.Background(), testPackage(), "bob", ImportOptions{})
	if err == nil {
		t.Fatal("expected import failure")
	}
	if result == nil || result.Success {
		t.Fatal("expected unsuccessful restore result")
	}
	if len(f.tenants.dropped) != 1 {
		t.Errorf("expected tenant dropped, got %v", f.tenants.dropped)
	}
	if len(f.tmplRepo.templates) != 0 {
		t.Error("no template row should be recorded for a failed import")
	}
}
