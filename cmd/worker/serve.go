package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/questforge-labs/questforge/common/logging"
	natsclient "github.com/questforge-labs/questforge/common/messaging/nats"
	"github.com/questforge-labs/questforge/internal/badge"
	"github.com/questforge-labs/questforge/internal/campaign"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/commission"
	"github.com/questforge-labs/questforge/internal/config"
	"github.com/questforge-labs/questforge/internal/consumer"
	"github.com/questforge-labs/questforge/internal/dispatch"
	"github.com/questforge-labs/questforge/internal/identity"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/quest"
	"github.com/questforge-labs/questforge/internal/redemption"
	"github.com/questforge-labs/questforge/internal/repository"
	"github.com/questforge-labs/questforge/internal/streak"
	"github.com/questforge-labs/questforge/internal/sweep"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the progression worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runServe(cfg)
	},
}

func runServe(cfg *config.Config) error {
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("worker"))
	logging.SetDefault(logger)

	logger.Info("starting progression worker",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_url", cfg.NATS.URL)

	connString := cfg.Database.Postgres.ConnString()
	if err := runMigrations(connString, "up"); err != nil {
		return err
	}
	logger.Info("database migrations completed")

	ctx := context.Background()

	store, err := repository.NewPostgresStore(ctx, connString)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer store.Close()

	var cat catalog.Catalog = catalog.NewPostgresCatalog(store.Pool(), logger)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The cache degrades to direct reads on failure, so a dead
			// redis at startup is a warning, not a fatal error.
			logger.Warn("redis unreachable, catalog reads go straight to postgres",
				"addr", cfg.Redis.Addr, logging.FieldError, err)
		}
		defer redisClient.Close()
		cat = catalog.NewCachedCatalog(cat, redisClient, cfg.Cache.TTL, logger)
	}

	bus, err := natsclient.NewClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "questforge-worker",
		MaxReconnects: -1,
	})
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer bus.Close()

	emitter := publisher.NewBusEmitter(bus, store, logger)

	// Identity runs first so referral links exist before commission sees
	// the purchase; the remaining engines are independent of each other.
	registry := dispatch.NewRegistry(logger)
	registry.Register(identity.NewHandler(store, store, emitter, logger))
	registry.Register(campaign.NewHandler(cat, store, campaign.NewExecutor(store, cat, emitter, logger), logger))
	registry.Register(badge.NewHandler(cat, store, store, emitter, logger))
	registry.Register(quest.NewHandler(cat, store, store, emitter, logger))
	registry.Register(streak.NewHandler(cat, store, store, store, emitter, logger))
	registry.Register(commission.NewHandler(cat, store, store, emitter, logger))

	redemptions := redemption.NewProcessor(store, store, emitter, logger)

	cons := consumer.New(bus, registry, redemptions, logger)
	if err := cons.Start(); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer cons.Stop()

	sweeper := sweep.New(store, store, bus, logger).
		WithIntervals(cfg.Sweep.StuckInterval, cfg.Sweep.FreezeInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !bus.IsConnected() {
			http.Error(w, "nats disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("metrics server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", logging.FieldError, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop taking new messages, let in-flight handlers finish, then tear
	// the rest down via the deferred closes.
	cons.Stop()
	if err := bus.Drain(); err != nil {
		logger.Warn("nats drain failed", logging.FieldError, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}

	logger.Info("worker stopped")
	return nil
}
