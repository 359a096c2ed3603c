package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/questforge-labs/questforge/common/logging"
	natsclient "github.com/questforge-labs/questforge/common/messaging/nats"
	"github.com/questforge-labs/questforge/internal/config"
	"github.com/questforge-labs/questforge/internal/seeder"
)

var (
	seedProject    string
	seedUsers      int
	seedEvents     int
	seedTimeSpread time.Duration
	seedSeed       int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish fake demo events onto the bus",
	Long: `seed generates fake end users and a weighted mix of raw events for
one project and publishes them to events.raw.{project}. Useful for
exercising a development stack.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
		logging.SetDefault(logger)

		bus, err := natsclient.NewClient(natsclient.Config{
			URL:  cfg.NATS.URL,
			Name: "questforge-seeder",
		})
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer bus.Close()

		return seeder.Run(context.Background(), bus, seeder.Config{
			ProjectID:  seedProject,
			Users:      seedUsers,
			Events:     seedEvents,
			TimeSpread: seedTimeSpread,
			Seed:       seedSeed,
		}, logger)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedProject, "project", "demo", "project id to seed")
	seedCmd.Flags().IntVar(&seedUsers, "users", 10, "number of fake users")
	seedCmd.Flags().IntVar(&seedEvents, "events", 500, "number of events to publish")
	seedCmd.Flags().DurationVar(&seedTimeSpread, "time-spread", time.Hour, "backdate events across this window")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 picks one)")
	rootCmd.AddCommand(seedCmd)
}
