// Package snapshot captures a template tenant's clinical dataset into one
// immutable structured document and reads it back for restore.
package snapshot

import (
	"fmt"
	"sort"
	"time"

	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
)

// IDField is the identifier column every replicable collection carries.
const IDField = "id"

// Snapshot is the immutable captured copy of a template's data. Records keep
// their original identifiers and raw foreign-key values; all remapping
// happens at restore time.
type Snapshot struct {
	Version int                       `json:"version"`
	TakenAt time.Time                 `json:"takenAt"`
	Data    map[string][]rowstore.Row `json:"data"`
}

// Collections returns the captured collection names, sorted.
func (s *Snapshot) Collections() []string {
	names := make([]string, 0, len(s.Data))
	for name := range s.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of captured records for one collection.
func (s *Snapshot) Count(collection string) int {
	return len(s.Data[collection])
}

// TotalRows returns the number of captured records across all collections.
func (s *Snapshot) TotalRows() int {
	n := 0
	for _, rows := range s.Data {
		n += len(rows)
	}
	return n
}

// RecordID renders a record's identifier as a comparable string.
func RecordID(row rowstore.Row) string {
	v, ok := row[IDField]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Dangling describes a captured record whose parent reference points at a
// record absent from the same snapshot.
type Dangling struct {
	Collection string `json:"collection"`
	RecordID   string `json:"record_id"`
	Field      string `json:"field"`
	MissingID  string `json:"missing_id"`
}

// Verify checks referential completeness: every record referencing a parent
// must have that parent captured in the same snapshot. Enforced at read time,
// not at capture, so a snapshot taken mid-edit is flagged when it is used.
func Verify(s *Snapshot, entries []registry.Entry) []Dangling {
	ids := make(map[string]map[string]bool, len(s.Data))
	for name, rows := range s.Data {
		set := make(map[string]bool, len(rows))
		for _, row := range rows {
			if id := RecordID(row); id != "" {
				set[id] = true
			}
		}
		ids[name] = set
	}

	var out []Dangling
	check := func(collection, recordID, field, parentCollection string, ref any) {
		if ref == nil {
			return
		}
		refID := fmt.Sprint(ref)
		if refID == "" {
			return
		}
		if !ids[parentCollection][refID] {
			out = append(out, Dangling{
				Collection: collection,
				RecordID:   recordID,
				Field:      field,
				MissingID:  refID,
			})
		}
	}

	for _, e := range entries {
		rows, ok := s.Data[e.Name]
		if !ok {
			continue
		}
		for _, row := range rows {
			id := RecordID(row)
			if e.ParentCollection != "" {
				check(e.Name, id, e.ParentLinkField, e.ParentCollection, row[e.ParentLinkField])
			}
			if e.CarriesPatientRef && e.ParentCollection != "patients" {
				check(e.Name, id, "patient_id", "patients", row["patient_id"])
			}
		}
	}
	return out
}
