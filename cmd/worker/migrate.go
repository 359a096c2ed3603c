package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/questforge-labs/questforge/internal/config"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Run database migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}
		return runMigrations(cfg.Database.Postgres.ConnString(), direction)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsPath, "migrations", "file://migrations", "migration source URL")
}

func runMigrations(connString, direction string) error {
	m, err := migrate.New(migrationsPath, connString)
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations %s: %w", direction, err)
	}
	return nil
}
