package models

import "encoding/json"

const (
	SourceInbound  = "inbound_from_n8n"
	SourceOutbound = "outbound_to_n8n"
)

// WebhookEvent is one row of the append-only integration log.
type WebhookEvent struct {
	ID             string          `json:"id"`
	Source         string          `json:"source"`
	EventType      string          `json:"event_type"`
	CorrelationID  string          `json:"correlation_id"`
	GabineteID     string          `json:"gabinete_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	StatusCode     int             `json:"status_code"`
	Request        json.RawMessage `json:"request,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
	ProcessedAt    int64           `json:"processed_at"`
}

const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxFailed    = "failed"
)

// OutboxMessage is a signed-event delivery waiting for (or done with) the relay.
type OutboxMessage struct {
	ID             string  `json:"id" db:"id"`
	Event          string  `json:"event" db:"event"`
	GabineteID     *string `json:"gabinete_id,omitempty" db:"gabinete_id"`
	CorrelationID  string  `json:"correlation_id" db:"correlation_id"`
	Payload        []byte  `json:"-" db:"payload"`
	Status         string  `json:"status" db:"status"`
	Attempts       int     `json:"attempts" db:"attempts"`
	MaxAttempts    int     `json:"max_attempts" db:"max_attempts"`
	NextAttemptAt  int64   `json:"next_attempt_at" db:"next_attempt_at"`
	LastStatusCode *int    `json:"last_status_code,omitempty" db:"last_status_code"`
	LastError      *string `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      int64   `json:"created_at" db:"created_at"`
	DeliveredAt    *int64  `json:"delivered_at,omitempty" db:"delivered_at"`
}
