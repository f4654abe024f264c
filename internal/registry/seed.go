package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Collections []Entry `yaml:"collections"`
}

// LoadSeedFile parses a registry seed definition. The seed is validated
// before it is returned so a broken file can never reach the database.
func LoadSeedFile(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry seed %s: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse registry seed %s: %w", path, err)
	}
	if len(f.Collections) == 0 {
		return nil, fmt.Errorf("registry seed %s: no collections defined", path)
	}
	if err := Validate(f.Collections); err != nil {
		return nil, fmt.Errorf("registry seed %s: %w", path, err)
	}
	return f.Collections, nil
}

// Defaults returns the built-in hacCare clinical collection set, used when no
// seed file is configured.
func Defaults() []Entry {
	return []Entry{
		{Name: "patients", Category: "identity", Kind: KindStable, CarriesTenantRef: true,
			RequiresIDRemap: true, DeletionOrder: 10, BarcodeField: "barcode_id", Enabled: true},
		{Name: "patient_medications", Category: "medication", Kind: KindStable, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			RequiresIDRemap: true, DeletionOrder: 8, BarcodeField: "barcode_id", Enabled: true},
		{Name: "wound_assessments", Category: "wound", Kind: KindStable, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			RequiresIDRemap: true, DeletionOrder: 8, BarcodeField: "barcode_id", Enabled: true},
		// Stable (the container barcode is printed) but not remapped: panels are
		// created in phase 2 and recorded there so lab_results can reference them.
		{Name: "lab_panels", Category: "lab", Kind: KindStable, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 8, BarcodeField: "barcode_id", Enabled: true},
		{Name: "device_placements", Category: "device", Kind: KindStable, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			RequiresIDRemap: true, DeletionOrder: 8, BarcodeField: "barcode_id", Enabled: true},

		{Name: "patient_vitals", Category: "event", Kind: KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 5, Enabled: true},
		{Name: "medication_administrations", Category: "event", Kind: KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patient_medications", ParentLinkField: "medication_id",
			DeletionOrder: 5, Enabled: true},
		{Name: "patient_notes", Category: "event", Kind: KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 5, Enabled: true},
		{Name: "patient_alerts", Category: "event", Kind: KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 5, Enabled: true},
		{Name: "bowel_records", Category: "event", Kind: KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 5, Enabled: true},
		{Name: "doctors_orders", Category: "order", Kind: KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "patients", ParentLinkField: "patient_id",
			DeletionOrder: 5, Enabled: true},
		{Name: "lab_results", Category: "event", Kind: KindEvent, CarriesTenantRef: true,
			CarriesPatientRef: true, ParentCollection: "lab_panels", ParentLinkField: "panel_id",
			DeletionOrder: 4, Enabled: true},
	}
}
