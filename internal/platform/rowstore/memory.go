package rowstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mem is an in-memory Store. It backs the engine test suites and local
// development without a database; tables must be declared up front so that
// schema introspection behaves like a real backend.
type Mem struct {
	mu     sync.RWMutex
	cols   map[string][]string // schema.table -> column set
	rows   map[string][]Row
	// InsertHook, when set, runs before every insert and can veto it.
	InsertHook func(schema, table string, row Row) error
}

func NewMem() *Mem {
	return &Mem{
		cols: make(map[string][]string),
		rows: make(map[string][]Row),
	}
}

func memKey(schema, table string) string { return schema + "." + table }

// DefineTable declares schema.table with the given live column set.
func (s *Mem) DefineTable(schema, table string, cols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(schema, table)
	s.cols[k] = append([]string(nil), cols...)
	if _, ok := s.rows[k]; !ok {
		s.rows[k] = nil
	}
}

func (s *Mem) Columns(_ context.Context, schema, table string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols, ok := s.cols[memKey(schema, table)]
	if !ok {
		return nil, fmt.Errorf("relation %s.%s does not exist", schema, table)
	}
	return append([]string(nil), cols...), nil
}

func matches(row Row, f Filter) bool {
	for k, v := range f.Eq {
		if fmt.Sprint(row[k]) != fmt.Sprint(v) {
			return false
		}
	}
	if f.TimeField != "" && (f.From != nil || f.To != nil) {
		ts, ok := row[f.TimeField].(time.Time)
		if !ok {
			return false
		}
		if f.From != nil && ts.Before(*f.From) {
			return false
		}
		if f.To != nil && ts.After(*f.To) {
			return false
		}
	}
	return true
}

func (s *Mem) Select(_ context.Context, schema, table string, f Filter) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := memKey(schema, table)
	if _, ok := s.cols[k]; !ok {
		return nil, fmt.Errorf("relation %s.%s does not exist", schema, table)
	}
	var out []Row
	for _, row := range s.rows[k] {
		if !matches(row, f) {
			continue
		}
		cp := make(Row, len(row))
		for c, v := range row {
			cp[c] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Mem) Insert(_ context.Context, schema, table string, row Row) error {
	if s.InsertHook != nil {
		if err := s.InsertHook(schema, table, row); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(schema, table)
	cols, ok := s.cols[k]
	if !ok {
		return fmt.Errorf("relation %s.%s does not exist", schema, table)
	}
	live := make(map[string]bool, len(cols))
	for _, c := range cols {
		live[c] = true
	}
	for c := range row {
		if !live[c] {
			return fmt.Errorf("column %q of relation %s.%s does not exist", c, schema, table)
		}
	}

	cp := make(Row, len(row))
	for c, v := range row {
		cp[c] = v
	}
	s.rows[k] = append(s.rows[k], cp)
	return nil
}

func (s *Mem) DeleteAll(_ context.Context, schema, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(schema, table)
	if _, ok := s.cols[k]; !ok {
		return 0, fmt.Errorf("relation %s.%s does not exist", schema, table)
	}
	n := int64(len(s.rows[k]))
	s.rows[k] = nil
	return n, nil
}

func (s *Mem) Count(ctx context.Context, schema, table string, f Filter) (int, error) {
	rows, err := s.Select(ctx, schema, table, f)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
