package rowstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PG implements Store on a pgx connection pool.
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func qualify(schema, table string) (string, error) {
	if !ValidIdent(schema) {
		return "", fmt.Errorf("invalid schema identifier: %q", schema)
	}
	if !ValidIdent(table) {
		return "", fmt.Errorf("invalid table identifier: %q", table)
	}
	return schema + "." + table, nil
}

func (s *PG) Columns(ctx context.Context, schema, table string) ([]string, error) {
	if _, err := qualify(schema, table); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s.%s: %w", schema, table, err)
	}
	return cols, nil
}

func buildWhere(f Filter, argOffset int) (string, []any) {
	var clauses []string
	var args []any
	idx := argOffset + 1

	// Deterministic clause order keeps queries stable across calls.
	keys := make([]string, 0, len(f.Eq))
	for k := range f.Eq {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !ValidIdent(k) {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, idx))
		args = append(args, f.Eq[k])
		idx++
	}

	if f.TimeField != "" && ValidIdent(f.TimeField) {
		if f.From != nil {
			clauses = append(clauses, fmt.Sprintf("%s >= $%d", f.TimeField, idx))
			args = append(args, *f.From)
			idx++
		}
		if f.To != nil {
			clauses = append(clauses, fmt.Sprintf("%s <= $%d", f.TimeField, idx))
			args = append(args, *f.To)
			idx++
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PG) Select(ctx context.Context, schema, table string, f Filter) ([]Row, error) {
	rel, err := qualify(schema, table)
	if err != nil {
		return nil, err
	}

	where, args := buildWhere(f, 0)
	rows, err := s.pool.Query(ctx, "SELECT * FROM "+rel+where, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", rel, err)
	}
	defer rows.Close()

	var out []Row
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row from %s: %w", rel, err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %s: %w", rel, err)
	}
	return out, nil
}

func (s *PG) Insert(ctx context.Context, schema, table string, row Row) error {
	rel, err := qualify(schema, table)
	if err != nil {
		return err
	}
	if len(row) == 0 {
		return fmt.Errorf("insert into %s: empty row", rel)
	}

	cols := make([]string, 0, len(row))
	for c := range row {
		if !ValidIdent(c) {
			return fmt.Errorf("insert into %s: invalid column %q", rel, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		rel, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", rel, err)
	}
	return nil
}

func (s *PG) DeleteAll(ctx context.Context, schema, table string) (int64, error) {
	rel, err := qualify(schema, table)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+rel)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", rel, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PG) Count(ctx context.Context, schema, table string, f Filter) (int, error) {
	rel, err := qualify(schema, table)
	if err != nil {
		return 0, err
	}
	where, args := buildWhere(f, 0)
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+rel+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", rel, err)
	}
	return n, nil
}
