package activity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit, offset int) ([]*Entry, int, error)
	ListByActor(ctx context.Context, actor string, limit, offset int) ([]*Entry, int, error)
	List(ctx context.Context, limit, offset int) ([]*Entry, int, error)
}
