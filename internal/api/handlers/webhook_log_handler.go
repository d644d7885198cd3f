package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"zapgate/internal/api/middleware"
	"zapgate/internal/engine/webhooks"
	"zapgate/internal/pkg/errors"
	"zapgate/internal/platform/audit"
)

// WebhookLogHandler exposes the integration trail of a gabinete and lets
// operators check connectivity to the automation endpoint.
type WebhookLogHandler struct {
	audit      *audit.Logger
	dispatcher *webhooks.Dispatcher
}

func NewWebhookLogHandler(auditLog *audit.Logger, dispatcher *webhooks.Dispatcher) *WebhookLogHandler {
	return &WebhookLogHandler{audit: auditLog, dispatcher: dispatcher}
}

func (h *WebhookLogHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	events, err := h.audit.List(r.Context(), tenant.GabineteID, limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list webhook events", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Test sends a signed test event synchronously and reports what the
// receiver answered.
func (h *WebhookLogHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)

	env := webhooks.NewEnvelope(webhooks.EventTest, uuid.New().String())
	env.Gabinete = &webhooks.GabineteRef{ID: tenant.GabineteID, Nome: tenant.GabineteNome}
	env.Data = map[string]string{"message": "Teste de integração"}

	body, err := env.Marshal()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to build test event", nil)
		return
	}

	res, err := h.dispatcher.Send(r.Context(), webhooks.Delivery{
		Event:         env.Event,
		CorrelationID: env.CorrelationID,
		GabineteID:    tenant.GabineteID,
		Body:          body,
	})
	switch {
	case stderrors.Is(err, webhooks.ErrNotConfigured):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Outbound webhook URL is not configured", nil)
		return
	case stderrors.Is(err, webhooks.ErrBreakerOpen):
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeUpstream, "Outbound webhook is failing; retry later", nil)
		return
	case err != nil:
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to send test event", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             res.StatusCode >= 200 && res.StatusCode < 300,
		"correlation_id": env.CorrelationID,
		"status_code":    res.StatusCode,
		"response":       string(res.Response),
		"error":          res.Error,
		"latency_ms":     res.Latency.Milliseconds(),
	})
}
