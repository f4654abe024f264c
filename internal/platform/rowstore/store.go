// Package rowstore is the generic tenant-scoped row store the lifecycle
// engines run against. It deliberately knows nothing about individual
// clinical collections: callers name a schema and a table, and the store
// reports the table's live column set so writes can be derived from the
// actual schema rather than from assumptions baked into engine code.
package rowstore

import (
	"context"
	"regexp"
	"time"
)

// Row is one record keyed by column name.
type Row map[string]any

// Filter narrows Select/Count to rows matching every equality pair and,
// when TimeField is set, the [From, To] window on that column.
type Filter struct {
	Eq        map[string]any
	TimeField string
	From      *time.Time
	To        *time.Time
}

// Store is the storage boundary for snapshot capture, restore and reset.
type Store interface {
	// Columns reports the live column set of schema.table in ordinal order.
	Columns(ctx context.Context, schema, table string) ([]string, error)
	// Select returns all rows matching the filter with every column populated.
	Select(ctx context.Context, schema, table string, f Filter) ([]Row, error)
	// Insert writes one row. Keys absent from the live schema are an error;
	// callers are expected to intersect against Columns first.
	Insert(ctx context.Context, schema, table string, row Row) error
	// DeleteAll removes every row of schema.table and reports how many went.
	DeleteAll(ctx context.Context, schema, table string) (int64, error)
	// Count reports the number of rows matching the filter.
	Count(ctx context.Context, schema, table string, f Filter) (int, error)
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdent reports whether s is safe to interpolate as a SQL identifier.
func ValidIdent(s string) bool {
	return identPattern.MatchString(s)
}
