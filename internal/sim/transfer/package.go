// Package transfer moves scenario templates between environments as
// self-contained JSON documents.
package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/haccare/simcare/internal/sim/snapshot"
)

// ExportVersion is the package format version this build reads and writes.
const ExportVersion = "1.0"

// Package is the portable form of a template: its metadata plus one full
// snapshot. Everything a receiving environment needs is inside the document;
// identifiers are remapped or preserved on import, never assumed shared.
type Package struct {
	ExportVersion string             `json:"export_version"`
	ExportedAt    time.Time          `json:"exported_at"`
	ExportedBy    string             `json:"exported_by"`
	Template      TemplateMeta       `json:"template"`
	Snapshot      *snapshot.Snapshot `json:"snapshot"`
}

type TemplateMeta struct {
	Name                   string  `json:"name"`
	Description            *string `json:"description,omitempty"`
	DefaultDurationMinutes int     `json:"default_duration_minutes"`
	SnapshotVersion        int     `json:"snapshot_version"`
}

// ReadPackage decodes a package document. Unknown fields are rejected so a
// truncated or hand-edited file fails here instead of half-importing.
func ReadPackage(r io.Reader) (*Package, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var pkg Package
	if err := dec.Decode(&pkg); err != nil {
		return nil, fmt.Errorf("decode package: %w", err)
	}
	return &pkg, nil
}

// WritePackage encodes a package document with stable indentation so
// exports diff cleanly under version control.
func WritePackage(w io.Writer, pkg *Package) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pkg); err != nil {
		return fmt.Errorf("encode package: %w", err)
	}
	return nil
}
