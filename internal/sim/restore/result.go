package restore

// Diagnostic codes attached to per-record and per-collection failures.
const (
	CodeInsertFailed      = "INSERT_FAILED"
	CodeDepMissing        = "DEP_MISSING"
	CodeSchemaDrift       = "SCHEMA_DRIFT"
	CodeZeroRows          = "ZERO_ROWS_RESTORED"
	CodeUnknownCollection = "UNKNOWN_COLLECTION"
)

type Diagnostic struct {
	Collection string `json:"collection"`
	OriginalID string `json:"original_id,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Result describes exactly what a launch restored. It is returned even on
// partial failure: callers must compare PerCollectionCounts against Expected
// rather than trusting Success alone, since a restore that silently writes
// zero rows is only visible through the counts.
type Result struct {
	Success             bool           `json:"success"`
	TablesRestored      int            `json:"tables_restored"`
	TotalRowsRestored   int            `json:"total_rows_restored"`
	PerCollectionCounts map[string]int `json:"per_collection_counts"`
	Expected            map[string]int `json:"expected"`
	Diagnostics         []Diagnostic   `json:"diagnostics"`
}

func newResult() *Result {
	return &Result{
		Success:             true,
		PerCollectionCounts: make(map[string]int),
		Expected:            make(map[string]int),
	}
}

func (r *Result) addDiagnostic(collection, originalID, code, message string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Collection: collection,
		OriginalID: originalID,
		Code:       code,
		Message:    message,
	})
}

// Discrepancies lists the collections that restored fewer rows than the
// snapshot contained.
func (r *Result) Discrepancies() map[string]int {
	out := make(map[string]int)
	for collection, want := range r.Expected {
		if got := r.PerCollectionCounts[collection]; got < want {
			out[collection] = want - got
		}
	}
	return out
}
