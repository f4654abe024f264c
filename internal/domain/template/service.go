package template

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/domain/activity"
	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/registry"
	"github.com/haccare/simcare/internal/sim/snapshot"
)

// TenantProvisioner creates and tears down per-template tenant schemas.
type TenantProvisioner interface {
	CreateTenant(ctx context.Context, tenantID string) error
	DropTenant(ctx context.Context, tenantID string) error
}

type Service struct {
	repo     Repository
	snapRepo snapshot.Repository
	builder  *snapshot.Builder
	reg      *registry.Service
	tenants  TenantProvisioner
	activity *activity.Service
	log      zerolog.Logger
}

func NewService(repo Repository, snapRepo snapshot.Repository, builder *snapshot.Builder,
	reg *registry.Service, tenants TenantProvisioner, act *activity.Service, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		snapRepo: snapRepo,
		builder:  builder,
		reg:      reg,
		tenants:  tenants,
		activity: act,
		log:      log,
	}
}

type CreateInput struct {
	Name                   string  `json:"name"`
	Description            *string `json:"description,omitempty"`
	DefaultDurationMinutes int     `json:"default_duration_minutes"`
}

// Create registers a new draft template and provisions its own tenant
// schema for authoring clinical content. The schema is dropped again if
// the metadata row cannot be written.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (*Template, error) {
	t := &Template{
		ID:                     uuid.New(),
		TenantID:               db.AllocateTenantID("tmpl"),
		Name:                   in.Name,
		Description:            in.Description,
		Status:                 StatusDraft,
		DefaultDurationMinutes: in.DefaultDurationMinutes,
		CreatedBy:              actor,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if err := s.tenants.CreateTenant(ctx, t.TenantID); err != nil {
		return nil, fmt.Errorf("provision template tenant: %w", err)
	}
	if err := s.repo.Create(ctx, t); err != nil {
		if dropErr := s.tenants.DropTenant(ctx, t.TenantID); dropErr != nil {
			s.log.Error().Err(dropErr).Str("tenant", t.TenantID).Msg("drop orphaned template tenant")
		}
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ActionTemplateCreated, "template", t.ID,
		map[string]any{"name": t.Name, "tenant_id": t.TenantID})
	s.log.Info().Str("template", t.ID.String()).Str("tenant", t.TenantID).Msg("template created")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Template, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

type UpdateInput struct {
	Name                   *string `json:"name,omitempty"`
	Description            *string `json:"description,omitempty"`
	DefaultDurationMinutes *int    `json:"default_duration_minutes,omitempty"`
}

// Update edits template metadata. Status moves through TakeSnapshot and
// Archive, never through here.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Template, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusArchived {
		return nil, fmt.Errorf("template %s is archived", id)
	}
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Description != nil {
		t.Description = in.Description
	}
	if in.DefaultDurationMinutes != nil {
		t.DefaultDurationMinutes = *in.DefaultDurationMinutes
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// TakeSnapshot captures the template tenant's current content as the next
// snapshot version. Dangling references inside the capture are logged as
// warnings but do not block the snapshot; the restore engine reports them
// again at launch time with full diagnostics.
func (s *Service) TakeSnapshot(ctx context.Context, id uuid.UUID, actor string, opts snapshot.BuildOptions) (*Template, *snapshot.Snapshot, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if t.Status == StatusArchived {
		return nil, nil, fmt.Errorf("template %s is archived", id)
	}

	entries, err := s.reg.ListEnabledAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	snap, err := s.builder.Build(ctx, t.TenantID, entries, t.SnapshotVersion+1, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("build snapshot: %w", err)
	}
	for _, d := range snapshot.Verify(snap, entries) {
		s.log.Warn().
			Str("template", id.String()).
			Str("collection", d.Collection).
			Str("record", d.RecordID).
			Str("field", d.Field).
			Str("missing", d.MissingID).
			Msg("dangling reference in snapshot")
	}

	if err := s.snapRepo.Save(ctx, t.ID, snap); err != nil {
		return nil, nil, fmt.Errorf("save snapshot: %w", err)
	}

	t.SnapshotVersion = snap.Version
	takenAt := snap.TakenAt
	t.SnapshotTakenAt = &takenAt
	if t.Status == StatusDraft {
		t.Status = StatusReady
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, nil, err
	}

	s.activity.Record(ctx, actor, activity.ActionSnapshotTaken, "template", t.ID,
		map[string]any{"version": snap.Version, "rows": snap.TotalRows()})
	s.log.Info().
		Str("template", t.ID.String()).
		Int("version", snap.Version).
		Int("rows", snap.TotalRows()).
		Msg("snapshot taken")
	return t, snap, nil
}

// Archive retires a template. Archived templates keep their tenant schema
// and snapshots so existing runs stay inspectable; there is no delete.
func (s *Service) Archive(ctx context.Context, id uuid.UUID, actor string) (*Template, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusArchived {
		return t, nil
	}
	t.Status = StatusArchived
	now := time.Now().UTC()
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info().Str("template", t.ID.String()).Msg("template archived")
	return t, nil
}
