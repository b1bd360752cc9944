package migrate

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/cmd/util"
	"github.com/mpapenbr/boostrace/pkg/config"
	"github.com/mpapenbr/boostrace/pkg/db/migrate"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration(cmd)
		},
	}

	cmd.Flags().StringVarP(&config.MigrationSourceURL,
		"migration-source-url",
		"m",
		"",
		"url to migration files (default: use the embedded migrations)")

	return cmd
}

func startMigration(cmd *cobra.Command) error {
	if config.DB == "" {
		return errors.New("no database configured (--db)")
	}
	if err := util.WaitForServices(cmd.Context()); err != nil {
		return err
	}
	if config.MigrationSourceURL == "" {
		log.Info("Using embedded migrations")
		if err := migrate.MigrateDB(config.DB); err != nil {
			return err
		}
	} else {
		log.Info("Using migrations files at", log.String("source", config.MigrationSourceURL))
		if err := migrate.MigrateDBFromSource(config.MigrationSourceURL, config.DB); err != nil {
			return err
		}
	}
	log.Info("Migration done")
	return nil
}
