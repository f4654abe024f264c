package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/haccare/simcare/internal/config"
	"github.com/haccare/simcare/internal/domain/activity"
	"github.com/haccare/simcare/internal/domain/run"
	"github.com/haccare/simcare/internal/domain/template"
	"github.com/haccare/simcare/internal/platform/auth"
	"github.com/haccare/simcare/internal/platform/db"
	"github.com/haccare/simcare/internal/platform/middleware"
	"github.com/haccare/simcare/internal/platform/rowstore"
	"github.com/haccare/simcare/internal/registry"
	"github.com/haccare/simcare/internal/sim/reset"
	"github.com/haccare/simcare/internal/sim/restore"
	"github.com/haccare/simcare/internal/sim/snapshot"
	"github.com/haccare/simcare/internal/sim/transfer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simcare-server",
		Short: "hacCare simulation lifecycle server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(templateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the lifecycle API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations (shared schema, or one tenant with --tenant)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.SharedMigrationsDir, cfg.TenantMigrationsDir)

			var count int
			if tenant == "" {
				fmt.Printf("Migrating shared schema\n")
				count, err = migrator.UpShared(ctx)
			} else {
				fmt.Printf("Migrating tenant schema: %s\n", db.SchemaName(tenant))
				count, err = migrator.UpTenant(ctx, tenant)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("tenant", "", "Tenant identifier (default: shared schema)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status (shared schema, or one tenant with --tenant)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.SharedMigrationsDir, cfg.TenantMigrationsDir)

			schema := db.SharedSchema
			var statuses []db.MigrationStatus
			if tenant == "" {
				statuses, err = migrator.SharedStatus(ctx)
			} else {
				schema = db.SchemaName(tenant)
				statuses, err = migrator.TenantStatus(ctx, tenant)
			}
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant identifier (default: shared schema)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant schemas",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and run tenant migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, cfg.TenantMigrationsDir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(createCmd)

	dropCmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop a tenant schema and all of its data",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Dropping tenant schema: %s\n", db.SchemaName(name))
			return db.DropTenantSchema(ctx, pool, name)
		},
	}
	dropCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(dropCmd)

	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Export and import template packages",
	}

	exportCmd := &cobra.Command{
		Use:   "export <template-id>",
		Short: "Export a template's latest snapshot to a package file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			svcs, pool, err := buildServices()
			if err != nil {
				return err
			}
			defer pool.Close()

			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}

			pkg, err := svcs.transfer.Export(context.Background(), id, "cli")
			if err != nil {
				return err
			}

			if out == "" {
				out = fmt.Sprintf("%s-v%d.json", pkg.Template.Name, pkg.Template.SnapshotVersion)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := transfer.WritePackage(f, pkg); err != nil {
				return err
			}
			fmt.Printf("Exported %s (snapshot v%d, %d rows) to %s\n",
				pkg.Template.Name, pkg.Template.SnapshotVersion, pkg.Snapshot.TotalRows(), out)
			return nil
		},
	}
	exportCmd.Flags().String("out", "", "Output file (default <name>-v<version>.json)")
	cmd.AddCommand(exportCmd)

	importCmd := &cobra.Command{
		Use:   "import <package-file>",
		Short: "Import a template package file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preserve, _ := cmd.Flags().GetBool("preserve-ids")

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			pkg, err := transfer.ReadPackage(f)
			if err != nil {
				return err
			}

			svcs, pool, err := buildServices()
			if err != nil {
				return err
			}
			defer pool.Close()

			t, result, err := svcs.transfer.Import(context.Background(), pkg, "cli",
				transfer.ImportOptions{PreserveStableIDs: preserve})
			if err != nil {
				if result != nil {
					for _, d := range result.Diagnostics {
						fmt.Printf("  %s %s: %s %s\n", d.Collection, d.OriginalID, d.Code, d.Message)
					}
				}
				return err
			}

			fmt.Printf("Imported %s as template %s (%d rows restored)\n", t.Name, t.ID, result.TotalRowsRestored)
			return nil
		},
	}
	importCmd.Flags().Bool("preserve-ids", false, "Keep stable identifiers so printed barcodes still scan")
	cmd.AddCommand(importCmd)

	return cmd
}

type services struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *registry.Service
	activity *activity.Service
	template *template.Service
	run      *run.Service
	transfer *transfer.Service
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid template id %q", s)
	}
	return id, nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func buildServices() (*services, *pgxpool.Pool, error) {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}

	svcs := wire(cfg, pool, logger)
	return svcs, pool, nil
}

// wire assembles the service graph. The rowstore and the engines are shared:
// snapshot capture, launch restore and reset all go through the same Store.
func wire(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *services {
	store := rowstore.NewPG(pool)
	provisioner := &db.Provisioner{Pool: pool, MigrationsDir: cfg.TenantMigrationsDir}

	regSvc := registry.NewService(registry.NewRepoPG(pool), logger)
	actSvc := activity.NewService(activity.NewRepoPG(pool), logger)

	snapRepo := snapshot.NewRepoPG(pool)
	builder := snapshot.NewBuilder(store, logger)
	restorer := restore.NewEngine(store, logger)
	resetter := reset.NewEngine(store, logger)

	templateRepo := template.NewRepoPG(pool)
	runRepo := run.NewRepoPG(pool)

	tmplSvc := template.NewService(templateRepo, snapRepo, builder, regSvc, provisioner, actSvc, logger)
	runSvc := run.NewService(runRepo, templateRepo, snapRepo, regSvc, restorer, resetter,
		provisioner, actSvc, run.NewHistoryRepoPG(pool), logger)
	xferSvc := transfer.NewService(templateRepo, snapRepo, regSvc, restorer, provisioner, actSvc, logger)

	return &services{
		cfg:      cfg,
		log:      logger,
		registry: regSvc,
		activity: actSvc,
		template: tmplSvc,
		run:      runSvc,
		transfer: xferSvc,
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Shared schema migrations run on every start; they are idempotent.
	if cfg.SharedMigrationsDir != "" {
		migrator := db.NewMigrator(pool, cfg.SharedMigrationsDir, cfg.TenantMigrationsDir)
		n, err := migrator.UpShared(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("shared migrations failed")
		}
		if n > 0 {
			logger.Info().Int("applied", n).Msg("shared migrations applied")
		}
	}

	svcs := wire(cfg, pool, logger)

	// Seed the collection registry. Existing rows always win over the seed.
	seed := registry.Defaults()
	if cfg.RegistrySeedFile != "" {
		if _, statErr := os.Stat(cfg.RegistrySeedFile); statErr == nil {
			seed, err = registry.LoadSeedFile(cfg.RegistrySeedFile)
			if err != nil {
				logger.Fatal().Err(err).Msg("registry seed file invalid")
			}
		}
	}
	if err := svcs.registry.Seed(ctx, seed); err != nil {
		logger.Fatal().Err(err).Msg("registry seeding failed")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "64M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Auth middleware
	switch cfg.ResolvedAuthMode() {
	case "development":
		e.Use(auth.DevAuthMiddleware())
	default:
		e.Use(auth.TokenMiddleware([]byte(cfg.AuthSecret)))
	}

	// Tenant middleware
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	// API group
	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	api.Use(middleware.RequestTimeout(cfg.LifecycleTimeout))

	// Routes
	registry.NewHandler(svcs.registry).RegisterRoutes(api)
	activity.NewHandler(svcs.activity).RegisterRoutes(api)
	template.NewHandler(svcs.template).RegisterRoutes(api)
	run.NewHandler(svcs.run).RegisterRoutes(api)
	transfer.NewHandler(svcs.transfer, svcs.activity).RegisterRoutes(api)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
