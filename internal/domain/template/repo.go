package template

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	Update(ctx context.Context, t *Template) error
	List(ctx context.Context, status string, limit, offset int) ([]*Template, int, error)
}
