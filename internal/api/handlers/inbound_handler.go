package handlers

import (
	"errors"
	"io"
	"net/http"

	"zapgate/internal/api/middleware"
	"zapgate/internal/engine/gateway"
)

// InboundHandler is the HTTP face of the gateway. The token has already
// been checked by middleware.WebhookToken.
type InboundHandler struct {
	gw      *gateway.Service
	maxBody int64
}

func NewInboundHandler(gw *gateway.Service, maxBody int64) *InboundHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &InboundHandler{gw: gw, maxBody: maxBody}
}

func (h *InboundHandler) Handle(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := gateway.Request{
			Route:          eventType,
			IdempotencyKey: r.Header.Get(middleware.HeaderIdempotencyKey),
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
		req.Raw = raw

		var resp *gateway.Response
		if err != nil {
			msg := "corpo da requisição ilegível"
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				msg = "corpo da requisição muito grande"
			}
			resp = h.gw.Refuse(r.Context(), req, gateway.Validation, msg)
		} else {
			resp = h.gw.Process(r.Context(), req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Correlation-ID", resp.CorrelationID)
		if resp.Replayed {
			w.Header().Set("Idempotent-Replayed", "true")
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}
