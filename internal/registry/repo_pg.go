package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const registryCols = `name, category, kind, carries_tenant_ref, carries_patient_ref,
	parent_collection, parent_link_field, requires_id_remap, deletion_order,
	barcode_field, enabled`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.Name, &e.Category, &e.Kind, &e.CarriesTenantRef, &e.CarriesPatientRef,
		&e.ParentCollection, &e.ParentLinkField, &e.RequiresIDRemap, &e.DeletionOrder,
		&e.BarcodeField, &e.Enabled,
	)
	return e, err
}

func (r *RepoPG) List(ctx context.Context) ([]Entry, error) {
	q := fmt.Sprintf(`SELECT %s FROM shared.entity_registry ORDER BY deletion_order DESC, name`, registryCols)
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registry entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *RepoPG) Upsert(ctx context.Context, e Entry) error {
	q := fmt.Sprintf(`INSERT INTO shared.entity_registry (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (name) DO UPDATE SET
			category = EXCLUDED.category,
			kind = EXCLUDED.kind,
			carries_tenant_ref = EXCLUDED.carries_tenant_ref,
			carries_patient_ref = EXCLUDED.carries_patient_ref,
			parent_collection = EXCLUDED.parent_collection,
			parent_link_field = EXCLUDED.parent_link_field,
			requires_id_remap = EXCLUDED.requires_id_remap,
			deletion_order = EXCLUDED.deletion_order,
			barcode_field = EXCLUDED.barcode_field,
			enabled = EXCLUDED.enabled`, registryCols)
	_, err := r.pool.Exec(ctx, q,
		e.Name, e.Category, e.Kind, e.CarriesTenantRef, e.CarriesPatientRef,
		e.ParentCollection, e.ParentLinkField, e.RequiresIDRemap, e.DeletionOrder,
		e.BarcodeField, e.Enabled,
	)
	if err != nil {
		return fmt.Errorf("upsert registry entry %s: %w", e.Name, err)
	}
	return nil
}

func (r *RepoPG) SetEnabled(ctx context.Context, name string, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE shared.entity_registry SET enabled = $2 WHERE name = $1`, name, enabled)
	if err != nil {
		return fmt.Errorf("set enabled for %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registry entry %s not found", name)
	}
	return nil
}

func (r *RepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shared.entity_registry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registry entries: %w", err)
	}
	return n, nil
}
