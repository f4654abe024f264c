package transfer

import (
	"fmt"

	"github.com/haccare/simcare/internal/registry"
	"github.com/haccare/simcare/internal/sim/snapshot"
)

// Report is the outcome of validating a package before import. Errors block
// the import; warnings are surfaced but do not.
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *Report) errf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a package against the receiving environment's registry.
// A package is importable when its structure is sound, it carries at least
// one patient, and every stable record has the identifier and barcode the
// receiving side will key on.
func Validate(pkg *Package, entries []registry.Entry) *Report {
	rep := &Report{}

	if pkg.ExportVersion != ExportVersion {
		rep.errf("unsupported export version %q, this build reads %q", pkg.ExportVersion, ExportVersion)
	}
	if pkg.Template.Name == "" {
		rep.errf("template name is empty")
	}
	if pkg.Snapshot == nil {
		rep.errf("package carries no snapshot")
		rep.Valid = false
		return rep
	}
	if pkg.Snapshot.Count("patients") == 0 {
		rep.errf("snapshot contains no patients; nothing to train on")
	}

	known := registry.ByName(entries)
	for _, name := range pkg.Snapshot.Collections() {
		en, ok := known[name]
		if !ok {
			rep.warnf("collection %q is not in the receiving registry and will be skipped", name)
			continue
		}
		for _, row := range pkg.Snapshot.Data[name] {
			id := snapshot.RecordID(row)
			if id == "" {
				rep.errf("%s: record without an identifier", name)
				continue
			}
			if en.Kind == registry.KindStable && en.BarcodeField != "" {
				if v, ok := row[en.BarcodeField]; !ok || v == nil || v == "" {
					rep.warnf("%s %s: missing %s, printed labels will not scan", name, id, en.BarcodeField)
				}
			}
		}
	}

	for _, d := range snapshot.Verify(pkg.Snapshot, entries) {
		rep.warnf("%s %s: %s references missing %s", d.Collection, d.RecordID, d.Field, d.MissingID)
	}

	rep.Valid = len(rep.Errors) == 0
	return rep
}
