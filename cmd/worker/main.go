package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"zapgate/internal/engine/idempotency"
	"zapgate/internal/engine/webhooks"
	"zapgate/internal/pkg/logger"
	"zapgate/internal/platform/audit"
	"zapgate/internal/platform/config"
	"zapgate/internal/platform/database"
	"zapgate/internal/platform/repositories"
	"zapgate/internal/workers"
)

func main() {
	var (
		cfgPath string
		once    bool
	)

	root := &cobra.Command{
		Use:   "zapgate-worker",
		Short: "Deliver outbound events and expire idempotency keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger.Init(cfg.Logging, "worker")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, once)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "path to YAML config file")
	root.Flags().BoolVar(&once, "once", false, "run every task a single time and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	rawDB, err := database.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer rawDB.Close()
	db := sqlx.NewDb(rawDB, database.DriverName())

	rdb, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, pruning without cache")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	auditLog := audit.NewLogger(rawDB, cfg.Webhooks.Timeout)
	breaker := webhooks.NewBreaker(cfg.Webhooks.BreakerThreshold, cfg.Webhooks.BreakerCooldown)
	dispatcher := webhooks.NewDispatcher(cfg.Webhooks.URL, cfg.Webhooks.Secret, cfg.Webhooks.Timeout, breaker, auditLog)
	if !dispatcher.Configured() {
		log.Warn().Msg("webhooks.url is empty; outbox messages will not be delivered")
	}

	relay := webhooks.NewRelay(repositories.NewOutboxRepository(db), dispatcher,
		webhooks.NewRetrier(cfg.Webhooks.Backoff), webhooks.RelayConfig{
			Workers:   cfg.Webhooks.WorkerCount,
			BatchSize: cfg.Webhooks.BatchSize,
			Lease:     cfg.Webhooks.Timeout * 3,
		})
	store := idempotency.NewStore(db, rdb, cfg.Redis.CacheTTL)

	tasks := []workers.Task{
		workers.RelayTask(relay, cfg.Webhooks.PollInterval),
		workers.PruneTask(store, cfg.Gateway.IdempotencyRetention, cfg.Gateway.PruneInterval),
	}

	if once {
		for _, task := range tasks {
			if err := task.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
		}
		return nil
	}

	log.Info().Int("tasks", len(tasks)).Msg("workers starting")
	workers.Run(ctx, tasks...)
	log.Info().Msg("workers stopped")
	return nil
}
