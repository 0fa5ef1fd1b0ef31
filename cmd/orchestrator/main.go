package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studyon/internal/billing"
	"studyon/internal/config"
	"studyon/internal/logger"
	"studyon/internal/orchestrator/catalogsync"
	"studyon/internal/pgmq"
	"studyon/internal/repository"
	"studyon/internal/service"
	"studyon/internal/session"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "catalog-sync", "Orchestrator mode: catalog-sync")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}
	if cfg.NeedsSecrets() {
		secrets, err := service.NewSecretManagerResolver(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.Fatal().Msgf("Failed to create secret resolver: %v", err)
		}
		err = cfg.ResolveSecrets(ctx, secrets)
		_ = secrets.Close()
		if err != nil {
			logger.Fatal().Msgf("Failed to resolve secrets: %v", err)
		}
	}
	if cfg.DBDriver != config.DriverPostgres {
		logger.Fatal().Msgf("%s orchestrator needs DB_DRIVER=%s for pgmq", *mode, config.DriverPostgres)
	}

	// Initialize DB connection
	db, err := repository.Open(ctx, cfg.DBDriver, cfg.DBConnectionString)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
	}
	defer db.Close()
	logger.Info().Msg("Database connection established")

	// Initialize PGMQ client
	pgmqClient := pgmq.New(db)
	logger.Info().Msg("PGMQ client initialized")

	// Dispatch to the selected orchestrator
	var runErr error
	switch *mode {
	case "catalog-sync":
		runErr = runCatalogSync(ctx, cfg, pgmqClient, repository.NewCourseRepo(db, cfg.DBDriver))
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Fatal().Msgf("%s orchestrator failed: %v", *mode, runErr)
	}

	logger.Info().Msgf("%s orchestrator stopped gracefully", *mode)
}

func runCatalogSync(ctx context.Context, cfg *config.Config, q *pgmq.Client, courses repository.CourseRepository) error {
	logger := logger.New()
	if cfg.BillingServiceUsername == "" || cfg.BillingServicePassword == "" {
		logger.Fatal().Msg("BILLING_SERVICE_USERNAME and a billing service password are required for catalog sync")
	}

	client, err := billing.NewClient(ctx, billing.ClientConfig{
		BaseURL:     cfg.BillingBaseURL(),
		Timeout:     cfg.BillingTimeout(),
		DNSCacheTTL: cfg.BillingDNSCacheTTL(),
	}, logger)
	if err != nil {
		return err
	}
	account := catalogsync.NewServiceAccount(
		session.NewManager(client, nil, logger),
		billing.Credentials{Username: cfg.BillingServiceUsername, Password: cfg.BillingServicePassword},
	)

	worker := catalogsync.NewWorker(q, client, courses, account, catalogsync.OptionsFromConfig(cfg), logger)
	return worker.Run(ctx)
}
