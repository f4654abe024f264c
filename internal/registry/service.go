package registry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Seed installs the given entries when the registry is empty. Existing rows
// win: operators may have tuned the registry and a restart must not clobber
// their changes.
func (s *Service) Seed(ctx context.Context, entries []Entry) error {
	if err := Validate(entries); err != nil {
		return err
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Debug().Int("existing", n).Msg("registry already seeded")
		return nil
	}
	for _, e := range entries {
		if err := s.repo.Upsert(ctx, e); err != nil {
			return err
		}
	}
	s.log.Info().Int("collections", len(entries)).Msg("registry seeded")
	return nil
}

// List returns every registry entry, parents first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return CreationOrder(entries), nil
}

// ListEnabled returns the enabled entries whose remap flag matches
// requiresRemap, in creation order (parents before the children that will
// reference them).
func (s *Service) ListEnabled(ctx context.Context, requiresRemap bool) ([]Entry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := Filter(entries, func(e Entry) bool {
		return e.Enabled && e.RequiresIDRemap == requiresRemap
	})
	return CreationOrder(enabled), nil
}

// ListEnabledAll returns every enabled entry in creation order.
func (s *Service) ListEnabledAll(ctx context.Context) ([]Entry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return CreationOrder(Filter(entries, func(e Entry) bool { return e.Enabled })), nil
}

// ListEventCollections returns the enabled event-kind entries children-first,
// the order reset deletes them in.
func (s *Service) ListEventCollections(ctx context.Context) ([]Entry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	events := Filter(entries, func(e Entry) bool { return e.Enabled && e.Kind == KindEvent })
	return DeletionOrdered(events), nil
}

// Update validates the entry against the rest of the registry before writing.
func (s *Service) Update(ctx context.Context, e Entry) error {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	merged := make([]Entry, 0, len(entries)+1)
	replaced := false
	for _, existing := range entries {
		if existing.Name == e.Name {
			merged = append(merged, e)
			replaced = true
			continue
		}
		merged = append(merged, existing)
	}
	if !replaced {
		merged = append(merged, e)
	}
	if err := Validate(merged); err != nil {
		return fmt.Errorf("registry update rejected: %w", err)
	}
	return s.repo.Upsert(ctx, e)
}

// SetEnabled flips a collection on or off without structural revalidation;
// disabling a collection is always safe (the engines skip it with a warning).
func (s *Service) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return s.repo.SetEnabled(ctx, name, enabled)
}
