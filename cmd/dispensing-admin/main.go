package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/dispensing/internal/config"
	"github.com/ehr/dispensing/internal/domain/adt"
	"github.com/ehr/dispensing/internal/domain/clinicaldata"
	"github.com/ehr/dispensing/internal/domain/codemap"
	"github.com/ehr/dispensing/internal/domain/directory"
	"github.com/ehr/dispensing/internal/domain/dispensingsystem"
	"github.com/ehr/dispensing/internal/domain/facility"
	"github.com/ehr/dispensing/internal/domain/invoicetype"
	"github.com/ehr/dispensing/internal/domain/kit"
	"github.com/ehr/dispensing/internal/domain/license"
	"github.com/ehr/dispensing/internal/domain/location"
	"github.com/ehr/dispensing/internal/domain/medclass"
	"github.com/ehr/dispensing/internal/domain/pharmacyorder"
	"github.com/ehr/dispensing/internal/domain/repeatpattern"
	"github.com/ehr/dispensing/internal/domain/uom"
	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/auth"
	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/logging"
	"github.com/ehr/dispensing/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dispensing-admin",
		Short: "Medication dispensing administration API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(codemapCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the administration API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// bootstrap loads config and opens the pool shared by every subcommand.
func bootstrap(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)

	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DBSchema,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		TraceSQL:    cfg.DBTraceSQL,
	}, logger)
	if err != nil {
		return nil, logger, nil, err
	}
	return cfg, logger, pool, nil
}

func runServer() error {
	ctx := context.Background()
	cfg, logger, pool, err := bootstrap(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errs.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.PublicSkipper,
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development auth enabled: unauthenticated requests run as admin")
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, cfg.DBSchema, func() *db.PoolStats {
		return db.GetPoolStats(pool)
	}))

	apiV1 := e.Group("/api/v1", db.ScopeMiddleware(pool))
	registerRoutes(apiV1, pool, logger)

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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// registerRoutes builds every repository, service and handler on the shared
// pool and mounts them under api.
func registerRoutes(api *echo.Group, pool db.DB, logger zerolog.Logger) {
	encounters := adt.NewEncounterRepo(pool)
	units := uom.NewRepo(pool)

	facility.NewHandler(facility.NewService(facility.NewRepo(pool), logger)).RegisterRoutes(api)
	location.NewHandler(location.NewService(location.NewUnitRepo(pool), location.NewAreaRepo(pool), logger)).RegisterRoutes(api)
	repeatpattern.NewHandler(repeatpattern.NewService(repeatpattern.NewRepo(pool), logger)).RegisterRoutes(api)
	directory.NewHandler(directory.NewService(directory.NewDomainRepo(pool), directory.NewGroupRepo(pool), logger)).RegisterRoutes(api)
	adt.NewHandler(adt.NewService(adt.NewPatientRepo(pool), encounters, adt.NewPhysicianRepo(pool), logger)).RegisterRoutes(api)
	clinicaldata.NewHandler(clinicaldata.NewService(clinicaldata.NewSubjectRepo(pool), clinicaldata.NewUserTypeRepo(pool), logger)).RegisterRoutes(api)
	dispensingsystem.NewHandler(dispensingsystem.NewService(dispensingsystem.NewRepo(pool), logger)).RegisterRoutes(api)
	uom.NewHandler(uom.NewService(units, logger)).RegisterRoutes(api)
	codemap.NewHandler(codemap.NewService(codemap.NewRepo(pool), units, logger)).RegisterRoutes(api)
	kit.NewHandler(kit.NewService(kit.NewRepo(pool), logger)).RegisterRoutes(api)
	pharmacyorder.NewHandler(pharmacyorder.NewService(pharmacyorder.NewRepo(pool), encounters, logger)).RegisterRoutes(api)
	license.NewHandler(license.NewService(license.NewRepo(pool), logger)).RegisterRoutes(api)
	invoicetype.NewHandler(invoicetype.NewService(invoicetype.NewRepo(pool), logger)).RegisterRoutes(api)
	medclass.NewHandler(medclass.NewService(medclass.NewRepo(pool), logger)).RegisterRoutes(api)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up [version]",
		Short: "Apply pending migrations, optionally stopping at version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target int64
			if len(args) == 1 {
				v, err := parseVersion(args[0])
				if err != nil {
					return err
				}
				target = v
			}
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.UpTo(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down-to <version>",
		Short: "Roll back applied migrations until the schema is at version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator, schema string) error {
				count, err := m.DownTo(ctx, target)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Printf("Rolled back %d migration(s) on schema %s.\n", count, schema)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, pool, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	m, err := db.NewMigrator(pool, cfg.DBSchema)
	if err != nil {
		return err
	}
	return fn(ctx, m, cfg.DBSchema)
}

func parseVersion(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid migration version %q", s)
	}
	return v, nil
}

func codemapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codemap",
		Short: "Manage external code mappings",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import code mappings from a YAML document",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			_, logger, pool, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := codemap.NewService(codemap.NewRepo(pool), uom.NewRepo(pool), logger)
			res, err := svc.Import(ctx, f)
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			fmt.Printf("Imported %s: %d inserted, %d updated.\n", path, res.Inserted, res.Updated)
			return nil
		},
	}
	importCmd.Flags().String("file", "", "Path to the YAML mapping document")
	cmd.AddCommand(importCmd)

	return cmd
}
