package run

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	Update(ctx context.Context, r *Run) error
	List(ctx context.Context, templateID uuid.UUID, status string, limit, offset int) ([]*Run, int, error)
	CountByTemplate(ctx context.Context, templateID uuid.UUID) (int, error)
}
