package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"zapgate/internal/platform/models"
)

// Entry is one inbound call or one outbound delivery attempt.
type Entry struct {
	Source         string
	EventType      string
	CorrelationID  string
	GabineteID     string
	IdempotencyKey string
	StatusCode     int
	Request        []byte
	Response       []byte
}

// Logger writes the append-only webhook_events trail.
type Logger struct {
	db      *sql.DB
	timeout time.Duration
}

func NewLogger(db *sql.DB, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Logger{db: db, timeout: timeout}
}

// Record persists e. The write outlives cancellation of ctx (a client that
// hangs up still gets its call audited) but is bounded by the logger timeout.
func (l *Logger) Record(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, source, event_type, correlation_id, gabinete_id, idempotency_key, status_code, request, response, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, "evt_"+uuid.New().String(), e.Source, e.EventType, e.CorrelationID,
		nullable(e.GabineteID), nullable(e.IdempotencyKey), e.StatusCode,
		string(asJSON(e.Request)), string(asJSON(e.Response)), time.Now().Unix())
	if err != nil {
		log.Error().Err(err).
			Str("correlation_id", e.CorrelationID).
			Str("event_type", e.EventType).
			Int("status", e.StatusCode).
			Msg("failed to write webhook event")
	}
	return err
}

// List returns the latest events of a gabinete, newest first.
func (l *Logger) List(ctx context.Context, gabineteID string, limit int) ([]*models.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, source, event_type, correlation_id, gabinete_id, idempotency_key, status_code, request, response, processed_at
		FROM webhook_events
		WHERE gabinete_id = ?
		ORDER BY processed_at DESC, rowid DESC
		LIMIT ?
	`, gabineteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*models.WebhookEvent{}
	for rows.Next() {
		var ev models.WebhookEvent
		var gabinete, key, req, resp sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Source, &ev.EventType, &ev.CorrelationID, &gabinete, &key, &ev.StatusCode, &req, &resp, &ev.ProcessedAt); err != nil {
			return nil, err
		}
		ev.GabineteID = gabinete.String
		ev.IdempotencyKey = key.String
		if req.Valid && req.String != "" {
			ev.Request = json.RawMessage(req.String)
		}
		if resp.Valid && resp.String != "" {
			ev.Response = json.RawMessage(resp.String)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// asJSON keeps valid JSON as-is and wraps anything else as a JSON string,
// so the stored column always parses.
func asJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	if json.Valid(b) {
		return b
	}
	wrapped, _ := json.Marshal(string(b))
	return wrapped
}
