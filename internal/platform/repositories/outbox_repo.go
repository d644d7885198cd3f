package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"zapgate/internal/platform/models"
)

type OutboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// withTx runs fn in tx, or in a fresh transaction when tx is nil.
func (r *OutboxRepository) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()

	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *OutboxRepository) Insert(ctx context.Context, tx *sqlx.Tx, m *models.OutboxMessage) error {
	if m.Status == "" {
		m.Status = models.OutboxPending
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().Unix()
	}
	if m.NextAttemptAt == 0 {
		m.NextAttemptAt = m.CreatedAt
	}

	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO outbox (id, event, gabinete_id, correlation_id, payload, status, attempts, max_attempts, next_attempt_at, created_at)
			VALUES (:id, :event, :gabinete_id, :correlation_id, :payload, :status, :attempts, :max_attempts, :next_attempt_at, :created_at)
		`, m)
		return err
	})
}

// Due lists pending messages whose next attempt is at or before now.
func (r *OutboxRepository) Due(ctx context.Context, now int64, limit int) ([]*models.OutboxMessage, error) {
	var msgs []*models.OutboxMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT id, event, gabinete_id, correlation_id, payload, status, attempts, max_attempts,
		       next_attempt_at, last_status_code, last_error, created_at, delivered_at
		FROM outbox
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`, models.OutboxPending, now, limit)
	return msgs, err
}

// Claim leases m until leaseUntil so concurrent relays skip it. It reports
// false when another relay got there first.
func (r *OutboxRepository) Claim(ctx context.Context, m *models.OutboxMessage, leaseUntil int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET next_attempt_at = ?
		WHERE id = ? AND status = ? AND next_attempt_at = ?
	`, leaseUntil, m.ID, models.OutboxPending, m.NextAttemptAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		m.NextAttemptAt = leaseUntil
	}
	return n == 1, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, attempts, statusCode int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = ?, attempts = ?, last_status_code = ?, last_error = NULL, delivered_at = ?
		WHERE id = ?
	`, models.OutboxDelivered, attempts, statusCode, time.Now().Unix(), id)
	return err
}

func (r *OutboxRepository) ScheduleRetry(ctx context.Context, id string, attempts, statusCode int, lastError string, next time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET attempts = ?, last_status_code = ?, last_error = ?, next_attempt_at = ?
		WHERE id = ?
	`, attempts, statusCode, lastError, next.Unix(), id)
	return err
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, attempts, statusCode int, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = ?, attempts = ?, last_status_code = ?, last_error = ?
		WHERE id = ?
	`, models.OutboxFailed, attempts, statusCode, lastError, id)
	return err
}

func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*models.OutboxMessage, error) {
	var m models.OutboxMessage
	err := r.db.GetContext(ctx, &m, `
		SELECT id, event, gabinete_id, correlation_id, payload, status, attempts, max_attempts,
		       next_attempt_at, last_status_code, last_error, created_at, delivered_at
		FROM outbox WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
