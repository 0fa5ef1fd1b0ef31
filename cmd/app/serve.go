package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studyon/internal/api/v1/router"
	"studyon/internal/billing"
	"studyon/internal/config"
	"studyon/internal/pgmq"
	"studyon/internal/pubsub"
	"studyon/internal/repository"
	"studyon/internal/service"
	"studyon/internal/session"
)

func newServeCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), log)
		},
	}
}

func runServe(parent context.Context, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := loadConfig(ctx, log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info().Str("environment", cfg.Environment).Str("db_driver", cfg.DBDriver).Msg("App environment loaded")

	// 2. Open the catalog database
	db, err := repository.Open(ctx, cfg.DBDriver, cfg.DBConnectionString)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBDriver == config.DriverSQLite {
		// Local databases are migrated on start; Postgres uses the migrate command.
		if err := repository.Migrate(ctx, db, cfg.DBDriver); err != nil {
			return err
		}
	}
	log.Info().Msg("Database connection successful")

	// 3. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 4. Billing gateway and sessions
	client, err := billing.NewClient(ctx, billing.ClientConfig{
		BaseURL:     cfg.BillingBaseURL(),
		Timeout:     cfg.BillingTimeout(),
		DNSCacheTTL: cfg.BillingDNSCacheTTL(),
		Metrics:     billing.NewMetrics(reg),
	}, log)
	if err != nil {
		return err
	}
	manager := session.NewManager(client, session.NewMetrics(reg), log)
	store := session.NewStore([]byte(cfg.SessionKey), cfg.SessionMaxAgeSec, cfg.CookieSecure)

	// 5. Payment event publisher
	var publisher pubsub.Publisher = pubsub.NopPublisher{Logger: log}
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID, log)
		if err != nil {
			return err
		}
		publisher = p
	}
	defer publisher.Close()

	// 6. Repositories & services
	courseRepo := repository.NewCourseRepo(db, cfg.DBDriver)
	lessonRepo := repository.NewLessonRepository(db, cfg.DBDriver)

	var syncer service.CatalogSyncer
	if cfg.DBDriver == config.DriverPostgres {
		syncer = service.NewQueueCatalogSyncer(pgmq.New(db), cfg.CatalogSyncQueueName, log)
	} else {
		syncer = service.NewDirectCatalogSyncer(client, courseRepo, log)
	}

	metrics := service.NewMetrics(reg)
	resolver := service.NewEntitlementResolver(client, metrics, log)
	guard := service.NewAccessGuard(service.AccessPolicy{
		AllowUnknown:      cfg.AllowUnknownCourses(),
		CheckRentalExpiry: cfg.RentalExpiryCheck,
		AdminRole:         cfg.AdminRole,
	})

	handler := router.New(cfg, log, router.Deps{
		DB:           db,
		Registry:     reg,
		Sessions:     store,
		Manager:      manager,
		Users:        service.NewUserService(client, manager, log),
		Catalog:      service.NewCatalogService(courseRepo, lessonRepo, resolver, client, syncer, log),
		Lessons:      service.NewLessonService(lessonRepo, courseRepo, resolver, guard, metrics, log),
		Payments:     service.NewPaymentService(client, courseRepo, publisher, cfg.PaymentEventsTopic, log),
		Transactions: service.NewTransactionService(client, courseRepo, log),
	})

	// 7. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.BillingTimeout() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("🚀 Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 8. Graceful shutdown
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("Server shut down gracefully")
	return nil
}
