package webhooks

import (
	"encoding/json"
	"time"
)

const (
	EventUserCreated = "user_created"
	EventTest        = "test"
)

type UserRef struct {
	ID           string `json:"id"`
	Nome         string `json:"nome"`
	Email        string `json:"email"`
	WhatsAppE164 string `json:"whatsapp_e164"`
}

type GabineteRef struct {
	ID   string `json:"id"`
	Nome string `json:"nome"`
}

// Envelope is the body of every outbound event.
type Envelope struct {
	Event         string       `json:"event"`
	Timestamp     string       `json:"timestamp"`
	CorrelationID string       `json:"correlation_id"`
	User          *UserRef     `json:"user,omitempty"`
	Gabinete      *GabineteRef `json:"gabinete,omitempty"`
	Data          interface{}  `json:"data,omitempty"`
}

func NewEnvelope(event, correlationID string) *Envelope {
	return &Envelope{
		Event:         event,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		CorrelationID: correlationID,
	}
}

// Marshal returns the bytes that are both signed and sent.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
