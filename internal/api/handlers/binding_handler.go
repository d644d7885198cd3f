package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"zapgate/internal/api/middleware"
	"zapgate/internal/engine/identity"
	"zapgate/internal/pkg/errors"
	"zapgate/internal/platform/repositories"
)

// BindingHandler lets gabinete operators link and unlink WhatsApp numbers.
type BindingHandler struct {
	svc *identity.Service
}

func NewBindingHandler(svc *identity.Service) *BindingHandler {
	return &BindingHandler{svc: svc}
}

func (h *BindingHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)

	var req identity.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	b, err := h.svc.Create(r.Context(), tenant.GabineteID, req)
	if err != nil {
		writeBindingError(w, err)
		return
	}

	errors.WriteJSON(w, http.StatusCreated, b)
}

func (h *BindingHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)

	bindings, err := h.svc.List(r.Context(), tenant.GabineteID)
	if err != nil {
		writeBindingError(w, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bindings": bindings,
		"count":    len(bindings),
	})
}

func (h *BindingHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)

	var req identity.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	b, err := h.svc.Update(r.Context(), tenant.GabineteID, param(r, "binding_id"), req)
	if err != nil {
		writeBindingError(w, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, b)
}

func (h *BindingHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)

	if err := h.svc.Deactivate(r.Context(), tenant.GabineteID, param(r, "binding_id")); err != nil {
		writeBindingError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeBindingError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, identity.ErrInvalidInput):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	case stderrors.Is(err, repositories.ErrPhoneTaken):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, err.Error(), nil)
	case stderrors.Is(err, identity.ErrBindingNotFound), stderrors.Is(err, identity.ErrGabineteNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, err.Error(), nil)
	default:
		log.Error().Err(err).Msg("binding operation failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
