package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service records and queries lifecycle activity. Entries are written
// once and never updated or deleted.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Record appends an entry with the current timestamp. Detail may be nil.
// A failed append is logged but never propagated: audit writes must not
// fail the operation they describe.
func (s *Service) Record(ctx context.Context, actor, action, subjectType string, subjectID uuid.UUID, detail any) {
	var raw json.RawMessage
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			s.log.Error().Err(err).Str("action", action).Msg("marshal activity detail")
		} else {
			raw = b
		}
	}
	e := &Entry{
		ID:          uuid.New(),
		OccurredAt:  time.Now().UTC(),
		Actor:       actor,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Detail:      raw,
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.log.Error().Err(err).
			Str("action", action).
			Str("subject_type", subjectType).
			Str("subject_id", subjectID.String()).
			Msg("append activity entry")
	}
}

func (s *Service) ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListBySubject(ctx, subjectType, subjectID, limit, offset)
}

func (s *Service) ListByActor(ctx context.Context, actor string, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByActor(ctx, actor, limit, offset)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, limit, offset)
}
