// Package workers runs the gateway's periodic background jobs: draining the
// outbound outbox and expiring stored idempotent responses.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"zapgate/internal/engine/idempotency"
	"zapgate/internal/engine/webhooks"
)

// Task is one job run every Interval until the context ends.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Run starts every task in its own goroutine and blocks until ctx is done
// and all of them have returned. Each task runs once immediately.
func Run(ctx context.Context, tasks ...Task) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			loop(ctx, task)
		}(task)
	}
	wg.Wait()
}

func loop(ctx context.Context, task Task) {
	interval := task.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Info().Str("task", task.Name).Dur("interval", interval).Msg("worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, task)

		select {
		case <-ctx.Done():
			log.Info().Str("task", task.Name).Msg("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// runOnce keeps a panicking job from taking the process down.
func runOnce(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", task.Name).Interface("panic", r).Msg("worker panicked")
		}
	}()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := task.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("task", task.Name).Msg("worker run failed")
		return
	}
	log.Debug().Str("task", task.Name).Dur("took", time.Since(start)).Msg("worker run finished")
}

// RelayTask drains due outbox messages.
func RelayTask(relay *webhooks.Relay, interval time.Duration) Task {
	return Task{
		Name:     "outbox_relay",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := relay.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("relay: %w", err)
			}
			if n > 0 {
				log.Info().Int("messages", n).Msg("outbox messages processed")
			}
			return nil
		},
	}
}

// PruneTask deletes idempotency keys older than retention.
func PruneTask(store *idempotency.Store, retention, interval time.Duration) Task {
	return Task{
		Name:     "idempotency_prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := store.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("expired idempotency keys pruned")
			}
			return nil
		},
	}
}
