package registry

import "context"

type Repository interface {
	List(ctx context.Context) ([]Entry, error)
	Upsert(ctx context.Context, e Entry) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
	Count(ctx context.Context) (int, error)
}
