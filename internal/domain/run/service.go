package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/domain/activity"
	"github.com/haccare/simcare/internal/domain/template"
	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/registry"
	"github.com/haccare/simcare/internal/sim/reset"
	"github.com/haccare/simcare/internal/sim/restore"
	"github.com/haccare/simcare/internal/sim/snapshot"
)

type Service struct {
	runs      Repository
	templates template.Repository
	snapRepo  snapshot.Repository
	reg       *registry.Service
	restorer  *restore.Engine
	resetter  *reset.Engine
	tenants   template.TenantProvisioner
	activity  *activity.Service
	history   HistoryRepository
	log       zerolog.Logger

	// One mutex per run so concurrent resets of the same run serialize
	// while resets of different runs proceed in parallel.
	resetLocks sync.Map
}

func NewService(runs Repository, templates template.Repository, snapRepo snapshot.Repository,
	reg *registry.Service, restorer *restore.Engine, resetter *reset.Engine,
	tenants template.TenantProvisioner, act *activity.Service,
	history HistoryRepository, log zerolog.Logger) *Service {
	return &Service{
		runs:      runs,
		templates: templates,
		snapRepo:  snapRepo,
		reg:       reg,
		restorer:  restorer,
		resetter:  resetter,
		tenants:   tenants,
		activity:  act,
		history:   history,
		log:       log,
	}
}

type LaunchInput struct {
	Name            string `json:"name"`
	SnapshotVersion int    `json:"snapshot_version,omitempty"`
}

// Launch materializes a run from a template snapshot. It provisions a fresh
// tenant schema, restores the snapshot into it and records the run. A restore
// whose result is not successful discards the tenant and fails the launch:
// a run missing an entire collection is not a run anyone should train on.
// The restore result is returned alongside the run so callers can surface
// per-record diagnostics even on a successful launch.
func (s *Service) Launch(ctx context.Context, templateID uuid.UUID, actor string, in LaunchInput) (*Run, *restore.Result, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status == template.StatusArchived {
		return nil, nil, fmt.Errorf("template %s is archived", templateID)
	}
	if !t.HasSnapshot() {
		return nil, nil, fmt.Errorf("template %s has no snapshot; take one before launching", templateID)
	}

	var snap *snapshot.Snapshot
	if in.SnapshotVersion > 0 {
		snap, err = s.snapRepo.Get(ctx, templateID, in.SnapshotVersion)
	} else {
		snap, err = s.snapRepo.Latest(ctx, templateID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}

	entries, err := s.reg.ListEnabledAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	runTenant := db.AllocateTenantID("run")
	if err := s.tenants.CreateTenant(ctx, runTenant); err != nil {
		return nil, nil, fmt.Errorf("provision run tenant: %w", err)
	}

	result, err := s.restorer.Launch(ctx, snap, entries, runTenant, restore.Options{})
	if err != nil {
		s.discardTenant(runTenant)
		return nil, result, fmt.Errorf("restore snapshot: %w", err)
	}
	if !result.Success {
		s.discardTenant(runTenant)
		return nil, result, fmt.Errorf("restore incomplete: %d collections short (see diagnostics)", len(result.Discrepancies()))
	}

	name := in.Name
	if name == "" {
		name = fmt.Sprintf("%s session", t.Name)
	}
	r := &Run{
		ID:              uuid.New(),
		TemplateID:      templateID,
		SnapshotVersion: snap.Version,
		TenantID:        runTenant,
		Name:            name,
		Status:          StatusActive,
		StartedBy:       actor,
		StartedAt:       time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, r); err != nil {
		s.discardTenant(runTenant)
		return nil, result, err
	}

	s.activity.Record(ctx, actor, activity.ActionRunLaunched, "run", r.ID, map[string]any{
		"template_id":      templateID,
		"snapshot_version": snap.Version,
		"tenant_id":        runTenant,
		"rows_restored":    result.TotalRowsRestored,
	})
	s.log.Info().
		Str("run", r.ID.String()).
		Str("template", templateID.String()).
		Str("tenant", runTenant).
		Int("rows", result.TotalRowsRestored).
		Msg("run launched")
	return r, result, nil
}

// discardTenant drops the tenant of a failed launch. It deliberately uses a
// fresh context: the launch context may already be cancelled, and a leaked
// schema is worse than an extra second of cleanup.
func (s *Service) discardTenant(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.tenants.DropTenant(ctx, tenantID); err != nil {
		s.log.Error().Err(err).Str("tenant", tenantID).Msg("drop tenant after failed launch")
	}
}

// Reset wipes the run's event collections back to the snapshot baseline.
// Stable records survive so printed barcodes keep scanning. Concurrent
// resets of the same run serialize on a per-run lock.
func (s *Service) Reset(ctx context.Context, runID uuid.UUID, actor string) (*reset.Result, error) {
	mu, _ := s.resetLocks.LoadOrStore(runID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	r, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Ended() {
		return nil, fmt.Errorf("run %s is completed; completed runs cannot be reset", runID)
	}

	entries, err := s.reg.ListEventCollections(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.resetter.Reset(ctx, r.TenantID, entries)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ActionRunReset, "run", r.ID, map[string]any{
		"rows_deleted": result.EventRowsDeleted,
		"collections":  len(result.PerCollectionDeleted),
	})
	s.log.Info().
		Str("run", r.ID.String()).
		Int64("rows_deleted", result.EventRowsDeleted).
		Msg("run reset")
	return result, nil
}

// Complete ends a run and archives its activity trail into history. The
// tenant schema is kept for debriefing; completed run schemas are cleaned up
// out of band.
func (s *Service) Complete(ctx context.Context, runID uuid.UUID, actor string) (*Run, error) {
	r, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Ended() {
		return nil, fmt.Errorf("run %s is already completed", runID)
	}
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.EndedAt = &now
	if err := s.runs.Update(ctx, r); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ActionRunCompleted, "run", r.ID, nil)
	if err := s.archiveActivity(ctx, r); err != nil {
		s.log.Error().Err(err).Str("run", r.ID.String()).Msg("activity archive failed")
		return nil, fmt.Errorf("run %s completed but archiving its activity failed: %w", runID, err)
	}
	s.log.Info().Str("run", r.ID.String()).Msg("run completed")
	return r, nil
}

const historyPageSize = 200

// archiveActivity freezes the run's full activity trail, completion entry
// included, into a history record keyed by the run.
func (s *Service) archiveActivity(ctx context.Context, r *Run) error {
	var trail []*activity.Entry
	for offset := 0; ; offset += historyPageSize {
		page, total, err := s.activity.ListBySubject(ctx, "run", r.ID, historyPageSize, offset)
		if err != nil {
			return err
		}
		trail = append(trail, page...)
		if len(page) == 0 || len(trail) >= total {
			break
		}
	}

	return s.history.Save(ctx, &HistoryRecord{
		RunID:           r.ID,
		TemplateID:      r.TemplateID,
		Name:            r.Name,
		SnapshotVersion: r.SnapshotVersion,
		StartedBy:       r.StartedBy,
		StartedAt:       r.StartedAt,
		EndedAt:         *r.EndedAt,
		Activity:        trail,
		ArchivedAt:      time.Now().UTC(),
	})
}

// History returns the archive record of a completed run.
func (s *Service) History(ctx context.Context, runID uuid.UUID) (*HistoryRecord, error) {
	return s.history.Get(ctx, runID)
}

func (s *Service) Pause(ctx context.Context, runID uuid.UUID) (*Run, error) {
	return s.setStatus(ctx, runID, StatusActive, StatusPaused)
}

func (s *Service) Resume(ctx context.Context, runID uuid.UUID) (*Run, error) {
	return s.setStatus(ctx, runID, StatusPaused, StatusActive)
}

func (s *Service) setStatus(ctx context.Context, runID uuid.UUID, from, to string) (*Run, error) {
	r, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Status != from {
		return nil, fmt.Errorf("run %s is %s, expected %s", runID, r.Status, from)
	}
	r.Status = to
	if err := s.runs.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, templateID uuid.UUID, status string, limit, offset int) ([]*Run, int, error) {
	return s.runs.List(ctx, templateID, status, limit, offset)
}
