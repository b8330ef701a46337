package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/opd/internal/config"
	"github.com/hms/opd/internal/domain/scheduling"
	"github.com/hms/opd/internal/platform/auth"
	"github.com/hms/opd/internal/platform/cache"
	"github.com/hms/opd/internal/platform/db"
	"github.com/hms/opd/internal/platform/events"
	"github.com/hms/opd/internal/platform/metrics"
	"github.com/hms/opd/internal/platform/middleware"
	"github.com/hms/opd/internal/platform/websocket"
	"github.com/hms/opd/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "opd-server",
		Short:        "OPD slot planning API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tenantCmd())
	root.AddCommand(slotsCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// -- migrate --

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			target, _ := cmd.Flags().GetInt("to")
			return withPool(cmd.Context(), func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				schema, err := db.SchemaName(tenant)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := db.NewMigrator(pool, migrations.FS).UpTo(ctx, schema, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("tenant", "default", "Tenant whose schema is migrated")
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withPool(cmd.Context(), func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				schema, err := db.SchemaName(tenant)
				if err != nil {
					return err
				}
				statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration status for schema: %s\n", schema)
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("tenant", "default", "Tenant whose schema is inspected")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.DateTime)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	tw.Flush()
}

// -- tenant --

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			return withPool(cmd.Context(), func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s created.\n", name)
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (letters, digits, underscore)")
	cmd.AddCommand(createCmd)
	return cmd
}

// -- slots --

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print a doctor's day plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorArg, _ := cmd.Flags().GetString("doctor")
			dateArg, _ := cmd.Flags().GetString("date")
			tenant, _ := cmd.Flags().GetString("tenant")
			onlyAvailable, _ := cmd.Flags().GetBool("available")

			doctorID, err := uuid.Parse(doctorArg)
			if err != nil {
				return fmt.Errorf("--doctor must be a uuid: %w", err)
			}
			date, err := scheduling.ParseDate(dateArg)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}

			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if tenant == "" {
					tenant = cfg.DefaultTenant
				}
				schema, err := db.SchemaName(tenant)
				if err != nil {
					return err
				}
				conn, err := pool.Acquire(ctx)
				if err != nil {
					return fmt.Errorf("acquire connection: %w", err)
				}
				defer conn.Release()
				if _, err := conn.Exec(ctx, "SET search_path TO "+schema+", public"); err != nil {
					return fmt.Errorf("set search_path: %w", err)
				}
				ctx = db.WithTenant(ctx, tenant, conn)

				svc, err := newService(cfg, pool, zerolog.Nop())
				if err != nil {
					return err
				}
				plan, err := svc.DayPlan(ctx, doctorID, date)
				if err != nil {
					return err
				}
				printPlan(cmd.OutOrStdout(), plan, onlyAvailable)
				return nil
			})
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("date", time.Now().Format(time.DateOnly), "Date as YYYY-MM-DD")
	cmd.Flags().String("tenant", "", "Tenant (defaults to DEFAULT_TENANT)")
	cmd.Flags().Bool("available", false, "Only list available slots")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func printPlan(w io.Writer, plan *scheduling.DayPlan, onlyAvailable bool) {
	slots := plan.Slots
	if onlyAvailable {
		slots = plan.Available
	}

	fmt.Fprintf(w, "Doctor %s on %s\n", plan.DoctorID, plan.Date.Format(time.DateOnly))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tLOCATION\tSTATUS\tPATIENT")
	for _, s := range slots {
		status := string(s.Status)
		if s.Legacy {
			status += " (legacy)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Label(), s.Location, status, s.PatientName)
	}
	tw.Flush()

	if len(plan.Locations) > 0 {
		fmt.Fprintf(w, "Locations: %s\n", strings.Join(plan.Locations, ", "))
	}
	fmt.Fprintf(w, "%d slot(s), %d available\n", len(plan.Slots), len(plan.Available))
}

// -- shared setup --

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func withPool(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func newService(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*scheduling.Service, error) {
	precedence, err := scheduling.ParsePrecedence(cfg.SlotDatePrecedence)
	if err != nil {
		return nil, err
	}
	return scheduling.NewService(
		scheduling.NewDoctorRepoPG(pool),
		scheduling.NewAvailabilityRepoPG(pool),
		scheduling.NewBookingRepoPG(pool),
		scheduling.NewPlanner(cfg.SlotMinutes, precedence),
		logger,
	), nil
}

// newPlanCache returns the configured store and a close func.
func newPlanCache(ctx context.Context, cfg *config.Config) (cache.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.PlanCache {
	case config.PlanCacheRedis:
		r, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return r, r.Close, nil
	case config.PlanCacheMemory:
		return cache.NewMemory(), noop, nil
	default:
		return cache.Nop{}, noop, nil
	}
}

// newEventSource returns nil when EVENT_SOURCE is none.
func newEventSource(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (events.Source, error) {
	switch cfg.EventSource {
	case config.EventSourcePostgres:
		l, err := events.NewPGListener(pool, cfg.EventPGChannel, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.EventSourceKafka:
		k, err := events.NewKafkaSource(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger)
		if err != nil {
			return nil, err
		}
		return k, nil
	default:
		return nil, nil
	}
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		return auth.DevAuthMiddleware(cfg.DefaultTenant)
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	})
}

func tenantSkipper(c echo.Context) bool {
	return auth.IsPublicPath(c.Path()) || c.Path() == "/ws"
}

// socketTenant scopes a websocket client to the tenant of its token. Headers
// and query parameters are not consulted, so a client cannot subscribe to
// another tenant's events.
func socketTenant(defaultTenant string) websocket.TenantFunc {
	return func(c echo.Context) string {
		if tid, ok := c.Get(auth.TenantContextKey).(string); ok && tid != "" {
			return tid
		}
		return defaultTenant
	}
}

// newEcho assembles middleware and routes. pool is only used by the tenant
// middleware and /health/db.
func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, svc *scheduling.Service, hub *websocket.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, db.TenantHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(authMiddleware(cfg))
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, tenantSkipper))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	websocket.NewHandler(hub, cfg.CORSOrigins, socketTenant(cfg.DefaultTenant)).RegisterRoutes(e)

	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst

	apiV1 := e.Group("/api/v1", middleware.RequestTimeout(cfg.RequestTimeout), middleware.RateLimit(rl))
	scheduling.NewHandler(svc).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development mode without AUTH_SIGNING_KEY: every request is treated as admin")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	go db.ReportPoolStats(ctx, pool, 15*time.Second)

	svc, err := newService(cfg, pool, logger)
	if err != nil {
		return err
	}
	store, closeCache, err := newPlanCache(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open plan cache")
		return err
	}
	defer closeCache()
	svc.UsePlanCache(store, cfg.PlanCacheTTL)
	logger.Info().Str("backend", cfg.PlanCache).Dur("ttl", cfg.PlanCacheTTL).Msg("plan cache configured")

	hub := websocket.NewHub(logger)

	src, err := newEventSource(cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create event source")
		return err
	}
	if src != nil {
		relay := events.NewRelay(hub, svc, cfg.DefaultTenant, logger)
		go func() {
			if err := relay.Run(ctx, src); err != nil {
				logger.Error().Err(err).Str("source", src.Name()).Msg("event relay failed")
			}
		}()
	}

	e := newEcho(cfg, logger, pool, svc, hub)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
