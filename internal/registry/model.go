// Package registry holds the entity registry: one declarative entry per
// replicable clinical collection. Snapshot capture, restore and reset are all
// driven off these entries, so adding a new collection is a registry row and
// a migration, never new engine code.
package registry

import (
	"fmt"
	"sort"
)

// Kind splits collections into the physical/identity layer whose identifiers
// are bound to printed artifacts (wristbands, medication labels) and the
// append-only record of in-session actions that a reset wipes.
type Kind string

const (
	KindStable Kind = "stable"
	KindEvent  Kind = "event"
)

type Entry struct {
	Name              string `db:"name" json:"name" yaml:"name"`
	Category          string `db:"category" json:"category" yaml:"category"`
	Kind              Kind   `db:"kind" json:"kind" yaml:"kind"`
	CarriesTenantRef  bool   `db:"carries_tenant_ref" json:"carries_tenant_ref" yaml:"carriesTenantRef"`
	CarriesPatientRef bool   `db:"carries_patient_ref" json:"carries_patient_ref" yaml:"carriesPatientRef"`
	ParentCollection  string `db:"parent_collection" json:"parent_collection" yaml:"parentCollection"`
	ParentLinkField   string `db:"parent_link_field" json:"parent_link_field" yaml:"parentLinkField"`
	RequiresIDRemap   bool   `db:"requires_id_remap" json:"requires_id_remap" yaml:"requiresIdRemap"`
	DeletionOrder     int    `db:"deletion_order" json:"deletion_order" yaml:"deletionOrder"`
	BarcodeField      string `db:"barcode_field" json:"barcode_field" yaml:"barcodeField"`
	Enabled           bool   `db:"enabled" json:"enabled" yaml:"enabled"`
}

// Validate checks the whole entry set for configuration errors. Any error
// here is fatal at startup; a broken registry must never be silently
// tolerated because every lifecycle engine trusts it.
func Validate(entries []Entry) error {
	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("registry entry with empty name")
		}
		if _, dup := byName[e.Name]; dup {
			return fmt.Errorf("duplicate registry entry %q", e.Name)
		}
		if e.Kind != KindStable && e.Kind != KindEvent {
			return fmt.Errorf("registry entry %q: kind must be %q or %q, got %q",
				e.Name, KindStable, KindEvent, e.Kind)
		}
		if e.DeletionOrder <= 0 {
			return fmt.Errorf("registry entry %q: deletion order must be positive, got %d",
				e.Name, e.DeletionOrder)
		}
		if (e.ParentCollection == "") != (e.ParentLinkField == "") {
			return fmt.Errorf("registry entry %q: parent collection and parent link field must be set together", e.Name)
		}
		if e.Kind == KindStable && e.BarcodeField == "" {
			return fmt.Errorf("registry entry %q: stable collections must declare a barcode field", e.Name)
		}
		byName[e.Name] = e
	}

	for _, e := range entries {
		if e.ParentCollection == "" {
			continue
		}
		parent, ok := byName[e.ParentCollection]
		if !ok {
			return fmt.Errorf("registry entry %q: unknown parent collection %q",
				e.Name, e.ParentCollection)
		}
		if e.ParentCollection == e.Name {
			return fmt.Errorf("registry entry %q: collection cannot be its own parent", e.Name)
		}
		// Children are deleted before parents, so a child must sort strictly
		// below its parent.
		if e.DeletionOrder >= parent.DeletionOrder {
			return fmt.Errorf("registry entry %q: deletion order %d must be below parent %q's %d",
				e.Name, e.DeletionOrder, parent.Name, parent.DeletionOrder)
		}
	}

	return nil
}

// CreationOrder sorts entries parents-first (descending deletion order,
// declaration order within a tier). Restore processes collections this way so
// that every parent identifier is mapped before its children reference it.
func CreationOrder(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeletionOrder > out[j].DeletionOrder
	})
	return out
}

// DeletionOrdered sorts entries children-first (ascending deletion order),
// the order reset deletes in.
func DeletionOrdered(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeletionOrder < out[j].DeletionOrder
	})
	return out
}

// Filter returns the entries matching keep, preserving order.
func Filter(entries []Entry, keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ByName indexes entries by collection name.
func ByName(entries []Entry) map[string]Entry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}
