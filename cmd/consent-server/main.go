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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/myhealthchain/api/internal/audit"
	"github.com/myhealthchain/api/internal/config"
	"github.com/myhealthchain/api/internal/domain/access"
	"github.com/myhealthchain/api/internal/domain/consent"
	"github.com/myhealthchain/api/internal/domain/identity"
	"github.com/myhealthchain/api/internal/domain/keys"
	"github.com/myhealthchain/api/internal/domain/records"
	"github.com/myhealthchain/api/internal/platform/auth"
	"github.com/myhealthchain/api/internal/platform/blobstore"
	"github.com/myhealthchain/api/internal/platform/crypto"
	"github.com/myhealthchain/api/internal/platform/db"
	"github.com/myhealthchain/api/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "consent-server",
		Short: "Patient consent and record access API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = fmt.Sprintf("applied %s", s.AppliedAt.Format(time.RFC3339))
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// sweepCmd runs one expiry pass and exits, for cron-style deployments that
// prefer an external scheduler over the in-process ticker.
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Transition expired grants once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			n, err := consent.NewGrantRepoPG(pool).SweepExpired(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d grant(s).\n", n)
			return nil
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Platform pieces shared by every domain service.
	txRunner := db.NewTxRunner(pool)
	auditor := audit.NewLogger(pool)
	blobs := blobstore.NewPostgres(pool)

	// Repositories.
	patientRepo := identity.NewPatientRepoPG(pool)
	doctorRepo := identity.NewDoctorRepoPG(pool)
	hospitalRepo := identity.NewHospitalRepoPG(pool)
	membershipRepo := identity.NewMembershipRepoPG(pool)
	keyRepo := keys.NewKeyRepoPG(pool)
	grantRepo := consent.NewGrantRepoPG(pool)
	recordRepo := records.NewRecordRepoPG(pool)

	attemptWindow, err := time.ParseDuration(cfg.PINAttemptWindow)
	if err != nil {
		logger.Fatal().Err(err).Str("value", cfg.PINAttemptWindow).Msg("invalid PIN_ATTEMPT_WINDOW")
	}

	// Domain services. The key manager owns the PIN attempt window so every
	// verification path shares one lockout.
	identitySvc := identity.NewService(patientRepo, doctorRepo, hospitalRepo, membershipRepo, auditor, txRunner)
	keyMgr := keys.NewManager(keyRepo, auditor, txRunner, crypto.DefaultArgon2Params(),
		cfg.KDFMaxConcurrent, cfg.PINAttemptLimit, attemptWindow)
	consentSvc := consent.NewService(grantRepo, identitySvc, keyMgr, membershipRepo, auditor, txRunner)
	evaluator := access.NewEvaluator(grantRepo, membershipRepo)
	gateway := records.NewGateway(recordRepo, blobs, evaluator, keyMgr, auditor, txRunner)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Origin())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	e.Use(middleware.AccessLog(logger))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.RecordBodyLimit))
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))

	e.GET("/health", db.HealthHandler(pool))

	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	keys.NewHandler(keyMgr).RegisterRoutes(apiV1)
	consent.NewHandler(consentSvc).RegisterRoutes(apiV1)
	records.NewHandler(gateway).RegisterRoutes(apiV1)

	// Background expiry sweep. Read-time expiry makes this a tidiness
	// job, not a correctness requirement.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if interval, err := time.ParseDuration(cfg.SweepInterval); err == nil && interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					n, err := consentSvc.SweepExpired(sweepCtx)
					if err != nil {
						logger.Error().Err(err).Msg("grant expiry sweep failed")
					} else if n > 0 {
						logger.Info().Int64("expired", n).Msg("swept expired grants")
					}
				}
			}
		}()
	}

	// Start server with graceful shutdown.
	go func() {
		addr := ":" + cfg.Port
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()
	logger.Info().Str("port", cfg.Port).Bool("tls", cfg.TLSEnabled).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	return nil
}
