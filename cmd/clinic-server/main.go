package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/intake"
	"github.com/clinic/clinic/internal/domain/records"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/sandbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointments API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				changed, err := m.Up()
				if err != nil {
					return err
				}
				if !changed {
					fmt.Println("No pending migrations.")
					return nil
				}
				fmt.Println("Migrations applied successfully.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				fmt.Println("Rolled back one migration.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				version, dirty, ok, err := m.Version()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("No migrations applied.")
					return nil
				}
				fmt.Printf("Version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	m, err := db.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			surname, _ := cmd.Flags().GetString("surname")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
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

			svc := identity.NewService(identity.NewUserRepoPG(pool), identity.NewPhysicianRepoPG(pool),
				db.NewTxManager(pool), nil, nil, zerolog.Nop())
			u, err := svc.CreateAdmin(ctx, name, surname, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("name", "Admin", "Given name")
	createAdmin.Flags().String("surname", "Clinic", "Surname")
	createAdmin.Flags().String("email", "", "Login email")
	createAdmin.Flags().String("password", "", "Initial password")

	cmd.AddCommand(createAdmin)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate a development database with a demo clinic",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.Physicians, _ = cmd.Flags().GetInt("physicians")
			seedCfg.Patients, _ = cmd.Flags().GetInt("patients")
			seedCfg.AppointmentsPerPatient, _ = cmd.Flags().GetInt("appointments")
			seedCfg.Password, _ = cmd.Flags().GetString("password")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to seed a production database")
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			seedCfg.FirstDay = time.Now().In(loc).AddDate(0, 0, 7)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg.Env)
			tx := db.NewTxManager(pool)
			identitySvc := identity.NewService(identity.NewUserRepoPG(pool), identity.NewPhysicianRepoPG(pool),
				tx, nil, nil, logger)
			recordsSvc := records.NewService(records.NewRecordRepoPG(pool), identitySvc, tx)
			schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), identitySvc, tx,
				nil, loc, cfg.CancellationWindow)

			res, err := sandbox.NewSeeder(seedCfg, identitySvc, schedulingSvc, recordsSvc, logger).Generate(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d physicians, %d patients, %d appointments.\n", res.Physicians, res.Patients, res.Appointments)
			fmt.Printf("All accounts use password %q:\n", seedCfg.Password)
			for _, email := range res.Logins {
				fmt.Println("  " + email)
			}
			return nil
		},
	}
	defaults := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("physicians", defaults.Physicians, "Physicians to create")
	cmd.Flags().Int("patients", defaults.Patients, "Patients to create")
	cmd.Flags().Int("appointments", defaults.AppointmentsPerPatient, "Appointments per patient")
	cmd.Flags().String("password", defaults.Password, "Password for every seeded account")
	cmd.Flags().Int64("seed", 0, "Random seed (0 picks one)")
	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token revocation
	revocations, closeRevocations, err := newRevocationStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeRevocations()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e := newRouter(routerDeps{
		cfg:         cfg,
		loc:         loc,
		pool:        pool,
		stats:       func() *db.PoolStats { return db.GetPoolStats(pool) },
		revocations: revocations,
		registry:    reg,
		logger:      logger,
	})

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

// newRevocationStore uses Redis when url is set so logouts survive restarts
// and are shared between replicas.
func newRevocationStore(ctx context.Context, url string) (auth.RevocationStore, func(), error) {
	if url == "" {
		store := auth.NewMemoryRevocationStore(time.Minute)
		return store, store.Close, nil
	}
	client, err := auth.NewRedisClient(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisRevocationStore(client), func() { _ = client.Close() }, nil
}

// dbPool is satisfied by *pgxpool.Pool and pgxmock pools.
type dbPool interface {
	db.Pool
	db.Pinger
}

type routerDeps struct {
	cfg         *config.Config
	loc         *time.Location
	pool        dbPool
	stats       func() *db.PoolStats
	revocations auth.RevocationStore
	registry    *prometheus.Registry
	logger      zerolog.Logger
}

func newRouter(d routerDeps) *echo.Echo {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler(logger)

	httpMetrics := metrics.NewHTTPMetrics(d.registry)
	schedMetrics := metrics.NewSchedulingMetrics(d.registry)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Metrics(httpMetrics))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	tokens := auth.NewTokenIssuer(cfg.SigningKey(), cfg.JWTIssuer, cfg.TokenTTL)

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:      tokens,
		Revocations: d.revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      logger,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(d.pool, d.stats))
	e.GET("/metrics", metrics.Handler(d.registry))

	tx := db.NewTxManager(d.pool)

	// Identity domain
	identitySvc := identity.NewService(identity.NewUserRepoPG(d.pool), identity.NewPhysicianRepoPG(d.pool),
		tx, tokens, d.revocations, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	// Records domain
	recordsSvc := records.NewService(records.NewRecordRepoPG(d.pool), identitySvc, tx)
	records.NewHandler(recordsSvc).RegisterRoutes(apiV1)

	// Scheduling domain
	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(d.pool), identitySvc, tx,
		schedMetrics, d.loc, cfg.CancellationWindow)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	// Walk-in intake
	intakeSvc := intake.NewService(identitySvc, recordsSvc, schedulingSvc, tx, schedMetrics)
	intake.NewHandler(intakeSvc).RegisterRoutes(apiV1)

	return e
}
