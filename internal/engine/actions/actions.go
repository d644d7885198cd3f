// Package actions holds the tenant-scoped business actions reachable over
// the WhatsApp webhook. Each handler performs its writes through the tx it
// is given and never reads the gabinete from the payload.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"zapgate/internal/engine/identity"
	"zapgate/internal/engine/permissions"
)

// Result is the action-specific part of a 200 response.
type Result struct {
	ID      string      `json:"id,omitempty"`
	Status  string      `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Items   interface{} `json:"items,omitempty"`
	Count   *int        `json:"count,omitempty"`
}

type Handler interface {
	Action() permissions.Action
	Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*Result, error)
}

// ValidationError is a caller-correctable payload problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// decode unmarshals an object payload into dst. An absent or null payload
// leaves dst zeroed.
func decode(payload json.RawMessage, dst interface{}) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return &ValidationError{Field: "payload", Message: "deve ser um objeto"}
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return &ValidationError{Field: "payload", Message: "formato inválido: " + err.Error()}
	}
	return nil
}

func required(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", invalid(field, "campo obrigatório")
	}
	return v, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
