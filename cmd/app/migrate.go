package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studyon/internal/config"
	"studyon/internal/repository"
)

func newMigrateCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog schema and the catalog sync queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, log)
			if err != nil {
				return err
			}
			db, err := repository.Open(ctx, cfg.DBDriver, cfg.DBConnectionString)
			if err != nil {
				return err
			}
			defer db.Close()

			var queues []string
			if cfg.DBDriver == config.DriverPostgres {
				queues = []string{cfg.CatalogSyncQueueName, cfg.CatalogSyncDeadLetterQueueName}
			}
			if err := repository.Migrate(ctx, db, cfg.DBDriver, queues...); err != nil {
				return err
			}
			log.Info().Str("db_driver", cfg.DBDriver).Strs("queues", queues).Msg("Migrations applied")
			return nil
		},
	}
}
