package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studyon/internal/config"
	"studyon/internal/logger"
	"studyon/internal/service"
)

// @title StudyOn API
// @version 1.0
// @description Course catalog with billing-backed access
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	log := logger.New()

	root := &cobra.Command{
		Use:           "studyon",
		Short:         "StudyOn course catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := newServeCmd(log)
	root.RunE = serve.RunE
	root.AddCommand(serve)
	root.AddCommand(newMigrateCmd(log))

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("studyon failed")
	}
}

// loadConfig reads .env and the environment, then resolves secret names
// through Secret Manager when any are configured.
func loadConfig(ctx context.Context, log zerolog.Logger) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.NeedsSecrets() {
		return cfg, nil
	}

	secrets, err := service.NewSecretManagerResolver(ctx, cfg.GCPProjectID)
	if err != nil {
		return nil, err
	}
	defer secrets.Close()
	if err := cfg.ResolveSecrets(ctx, secrets); err != nil {
		return nil, err
	}
	log.Info().Msg("Secrets resolved from Secret Manager")
	return cfg, nil
}
