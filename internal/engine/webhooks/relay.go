package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"zapgate/internal/platform/metrics"
	"zapgate/internal/platform/models"
	"zapgate/internal/platform/repositories"
)

type RelayConfig struct {
	Workers   int
	BatchSize int
	// Lease is how long a claimed row stays invisible to other relays.
	Lease time.Duration
}

// Relay drains the outbox: claim due rows, send, then mark them delivered,
// rescheduled or failed.
type Relay struct {
	repo       *repositories.OutboxRepository
	dispatcher *Dispatcher
	retrier    *Retrier
	cfg        RelayConfig
	now        func() time.Time
}

func NewRelay(repo *repositories.OutboxRepository, dispatcher *Dispatcher, retrier *Retrier, cfg RelayConfig) *Relay {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	return &Relay{repo: repo, dispatcher: dispatcher, retrier: retrier, cfg: cfg, now: time.Now}
}

// RunOnce processes one batch and returns how many rows it attempted.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if !r.dispatcher.Configured() {
		return 0, nil
	}

	now := r.now()
	due, err := r.repo.Due(ctx, now.Unix(), r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due outbox: %w", err)
	}
	metrics.OutboxBacklog.Set(float64(len(due)))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		attempted int
		sem       = make(chan struct{}, r.cfg.Workers)
	)

	for _, m := range due {
		claimed, err := r.repo.Claim(ctx, m, now.Add(r.cfg.Lease).Unix())
		if err != nil {
			log.Error().Err(err).Str("outbox_id", m.ID).Msg("failed to claim outbox message")
			continue
		}
		if !claimed {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return attempted, ctx.Err()
		}

		wg.Add(1)
		go func(m *models.OutboxMessage) {
			defer wg.Done()
			defer func() { <-sem }()

			if r.deliver(ctx, m) {
				mu.Lock()
				attempted++
				mu.Unlock()
			}
		}(m)
	}

	wg.Wait()
	return attempted, nil
}

// deliver reports whether an HTTP attempt was made.
func (r *Relay) deliver(ctx context.Context, m *models.OutboxMessage) bool {
	del := Delivery{
		Event:         m.Event,
		CorrelationID: m.CorrelationID,
		Body:          m.Payload,
	}
	if m.GabineteID != nil {
		del.GabineteID = *m.GabineteID
	}

	res, err := r.dispatcher.Send(ctx, del)
	if err != nil {
		// no attempt made; keep the attempt count and come back later
		outcome := "skipped"
		if errors.Is(err, ErrBreakerOpen) {
			outcome = "breaker_open"
		}
		metrics.OutboundDeliveries.WithLabelValues(m.Event, outcome).Inc()
		next := r.retrier.NextAttempt(r.now(), 1)
		if err := r.repo.ScheduleRetry(ctx, m.ID, m.Attempts, 0, err.Error(), next); err != nil {
			log.Error().Err(err).Str("outbox_id", m.ID).Msg("failed to reschedule outbox message")
		}
		return false
	}

	attempts := m.Attempts + 1
	decision := r.retrier.Decide(res.StatusCode, attempts, m.MaxAttempts)
	metrics.OutboundDeliveries.WithLabelValues(m.Event, decision.String()).Inc()

	switch decision {
	case Delivered:
		err = r.repo.MarkDelivered(ctx, m.ID, attempts, res.StatusCode)
	case Retry:
		err = r.repo.ScheduleRetry(ctx, m.ID, attempts, res.StatusCode, res.Error, r.retrier.NextAttempt(r.now(), attempts))
	default:
		err = r.repo.MarkFailed(ctx, m.ID, attempts, res.StatusCode, res.Error)
		log.Warn().
			Str("outbox_id", m.ID).
			Str("event", m.Event).
			Str("correlation_id", m.CorrelationID).
			Int("attempts", attempts).
			Int("status", res.StatusCode).
			Msg("outbound webhook gave up")
	}
	if err != nil {
		log.Error().Err(err).Str("outbox_id", m.ID).Str("decision", decision.String()).Msg("failed to update outbox message")
	}
	return true
}
