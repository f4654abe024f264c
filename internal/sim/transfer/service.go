package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haccare/simcare/internal/domain/activity"
	"github.com/haccare/simcare/internal/domain/template"
	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/registry"
	"github.com/haccare/simcare/internal/sim/restore"
	"github.com/haccare/simcare/internal/sim/snapshot"
)

type Service struct {
	templates template.Repository
	snapRepo  snapshot.Repository
	reg       *registry.Service
	restorer  *restore.Engine
	tenants   template.TenantProvisioner
	activity  *activity.Service
	log       zerolog.Logger
}

func NewService(templates template.Repository, snapRepo snapshot.Repository,
	reg *registry.Service, restorer *restore.Engine,
	tenants template.TenantProvisioner, act *activity.Service, log zerolog.Logger) *Service {
	return &Service{
		templates: templates,
		snapRepo:  snapRepo,
		reg:       reg,
		restorer:  restorer,
		tenants:   tenants,
		activity:  act,
		log:       log,
	}
}

// Export wraps a template's latest snapshot into a portable package.
func (s *Service) Export(ctx context.Context, templateID uuid.UUID, actor string) (*Package, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !t.HasSnapshot() {
		return nil, fmt.Errorf("template %s has no snapshot to export", templateID)
	}
	snap, err := s.snapRepo.Latest(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	pkg := &Package{
		ExportVersion: ExportVersion,
		ExportedAt:    time.Now().UTC(),
		ExportedBy:    actor,
		Template: TemplateMeta{
			Name:                   t.Name,
			Description:            t.Description,
			DefaultDurationMinutes: t.DefaultDurationMinutes,
			SnapshotVersion:        snap.Version,
		},
		Snapshot: snap,
	}

	s.activity.Record(ctx, actor, activity.ActionBackupCreated, "template", t.ID,
		map[string]any{"snapshot_version": snap.Version, "rows": snap.TotalRows()})
	s.log.Info().
		Str("template", t.ID.String()).
		Int("version", snap.Version).
		Msg("template exported")
	return pkg, nil
}

type ImportOptions struct {
	// PreserveStableIDs keeps stable identifiers from the package so barcodes
	// printed in the source environment still scan here. Off by default:
	// preserved identifiers can collide with existing data.
	PreserveStableIDs bool
}

// Import materializes a package as a brand-new template with its own tenant
// and snapshot version 1. The source environment's identity is irrelevant;
// validation and the restore engine treat the package as untrusted input.
func (s *Service) Import(ctx context.Context, pkg *Package, actor string, opts ImportOptions) (*template.Template, *restore.Result, error) {
	entries, err := s.reg.ListEnabledAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	rep := Validate(pkg, entries)
	if !rep.Valid {
		return nil, nil, fmt.Errorf("invalid package: %v", rep.Errors)
	}
	for _, w := range rep.Warnings {
		s.log.Warn().Str("template", pkg.Template.Name).Msg(w)
	}

	t := &template.Template{
		ID:                     uuid.New(),
		TenantID:               db.AllocateTenantID("tmpl"),
		Name:                   pkg.Template.Name,
		Description:            pkg.Template.Description,
		Status:                 template.StatusReady,
		DefaultDurationMinutes: pkg.Template.DefaultDurationMinutes,
		CreatedBy:              actor,
	}

	if err := s.tenants.CreateTenant(ctx, t.TenantID); err != nil {
		return nil, nil, fmt.Errorf("provision template tenant: %w", err)
	}

	result, err := s.restorer.Launch(ctx, pkg.Snapshot, entries, t.TenantID,
		restore.Options{PreserveStableIDs: opts.PreserveStableIDs})
	if err != nil {
		s.discardTenant(t.TenantID)
		return nil, result, fmt.Errorf("restore package: %w", err)
	}
	if !result.Success {
		s.discardTenant(t.TenantID)
		return nil, result, fmt.Errorf("import incomplete: %d collections short (see diagnostics)", len(result.Discrepancies()))
	}

	// The imported content becomes this template's version 1, regardless of
	// how many versions the source had.
	snap := &snapshot.Snapshot{
		Version: 1,
		TakenAt: pkg.Snapshot.TakenAt,
		Data:    pkg.Snapshot.Data,
	}
	if err := s.snapRepo.Save(ctx, t.ID, snap); err != nil {
		s.discardTenant(t.TenantID)
		return nil, result, fmt.Errorf("save snapshot: %w", err)
	}

	t.SnapshotVersion = 1
	takenAt := snap.TakenAt
	t.SnapshotTakenAt = &takenAt
	if err := s.templates.Create(ctx, t); err != nil {
		s.discardTenant(t.TenantID)
		return nil, result, err
	}

	s.activity.Record(ctx, actor, activity.ActionTemplateCreated, "template", t.ID, map[string]any{
		"name":                pkg.Template.Name,
		"imported":            true,
		"preserve_stable_ids": opts.PreserveStableIDs,
		"rows_restored":       result.TotalRowsRestored,
	})
	s.log.Info().
		Str("template", t.ID.String()).
		Str("tenant", t.TenantID).
		Int("rows", result.TotalRowsRestored).
		Bool("preserve_ids", opts.PreserveStableIDs).
		Msg("template imported")
	return t, result, nil
}

func (s *Service) discardTenant(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.tenants.DropTenant(ctx, tenantID); err != nil {
		s.log.Error().Err(err).Str("tenant", tenantID).Msg("drop tenant after failed import")
	}
}
