package middleware

import (
	"crypto/subtle"
	"io"
	"net/http"

	"zapgate/internal/engine/gateway"
)

const (
	HeaderWebhookToken   = "X-Webhook-Token"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// WebhookToken authenticates the automation engine by its shared secret.
// Failures are answered and audited here; the handler never runs. An empty
// configured token rejects everything.
type WebhookToken struct {
	token   []byte
	gw      *gateway.Service
	maxBody int64
}

func NewWebhookToken(token string, gw *gateway.Service, maxBody int64) *WebhookToken {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &WebhookToken{token: []byte(token), gw: gw, maxBody: maxBody}
}

func (m *WebhookToken) Valid(presented string) bool {
	if len(m.token) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), m.token) == 1
}

// For returns the middleware for one route, so rejections are audited
// under that route's event type.
func (m *WebhookToken) For(eventType string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if m.Valid(r.Header.Get(HeaderWebhookToken)) {
				next(w, r)
				return
			}

			raw, _ := io.ReadAll(io.LimitReader(r.Body, m.maxBody))
			resp := m.gw.Refuse(r.Context(), gateway.Request{
				Route:          eventType,
				IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
				Raw:            raw,
			}, gateway.Unauthenticated, "")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.StatusCode)
			_, _ = w.Write(resp.Body)
		}
	}
}
