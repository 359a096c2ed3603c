package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/questforge-labs/questforge/common/logging"
	natsclient "github.com/questforge-labs/questforge/common/messaging/nats"
	"github.com/questforge-labs/questforge/internal/config"
	"github.com/questforge-labs/questforge/internal/repository"
	"github.com/questforge-labs/questforge/internal/sweep"
)

var sweepFreezes bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one maintenance pass and exit",
	Long: `sweep drains the stuck-event queue once, republishing each stored
envelope on its original subject. With --freezes it also clears the
daily streak freeze flags. The serve command runs the same passes on a
schedule; this one-shot form suits cron jobs and manual recovery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
		logging.SetDefault(logger)
		ctx := context.Background()

		store, err := repository.NewPostgresStore(ctx, cfg.Database.Postgres.ConnString())
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer store.Close()

		bus, err := natsclient.NewClient(natsclient.Config{
			URL:  cfg.NATS.URL,
			Name: "questforge-sweep",
		})
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer bus.Close()

		s := sweep.New(store, store, bus, logger)
		if err := s.SweepStuck(ctx); err != nil {
			return fmt.Errorf("sweep stuck events: %w", err)
		}
		if sweepFreezes {
			if err := s.ResetFreezes(ctx); err != nil {
				return fmt.Errorf("reset freeze flags: %w", err)
			}
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepFreezes, "freezes", false, "also reset daily streak freeze flags")
	rootCmd.AddCommand(sweepCmd)
}
