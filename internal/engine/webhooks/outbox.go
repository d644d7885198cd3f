package webhooks

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"zapgate/internal/pkg/ids"
	"zapgate/internal/platform/models"
	"zapgate/internal/platform/repositories"
)

// Outbox freezes envelopes into outbox rows for the relay.
type Outbox struct {
	repo        *repositories.OutboxRepository
	maxAttempts int
}

func NewOutbox(repo *repositories.OutboxRepository, maxAttempts int) *Outbox {
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	return &Outbox{repo: repo, maxAttempts: maxAttempts}
}

// Enqueue serializes env once and stores the bytes in tx, so the event
// exists if and only if the caller's write commits. Retries re-send exactly
// these bytes.
func (o *Outbox) Enqueue(ctx context.Context, tx *sqlx.Tx, env *Envelope) (*models.OutboxMessage, error) {
	body, err := env.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	m := &models.OutboxMessage{
		ID:            ids.New("obx_"),
		Event:         env.Event,
		CorrelationID: env.CorrelationID,
		Payload:       body,
		MaxAttempts:   o.maxAttempts,
	}
	if env.Gabinete != nil && env.Gabinete.ID != "" {
		gid := env.Gabinete.ID
		m.GabineteID = &gid
	}

	if err := o.repo.Insert(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("insert outbox: %w", err)
	}
	return m, nil
}
