package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"zapgate/internal/api/middleware"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/pkg/errors"
	"zapgate/internal/platform/repositories"
)

type StatsHandler struct {
	records *repositories.RecordRepository
}

func NewStatsHandler(records *repositories.RecordRepository) *StatsHandler {
	return &StatsHandler{records: records}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)

	stats, err := h.records.Stats(r.Context(), tenant.GabineteID, time.Now().Add(-24*time.Hour).Unix())
	if err != nil {
		log.Error().Err(err).Str("gabinete_id", tenant.GabineteID).Msg("failed to compute stats")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to compute stats", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"gabinete":           tenant.GabineteNome,
		"stats":              stats,
		"permissions":        permissions.Actions(permissions.Role(tenant.Role)),
		"permission_version": permissions.Version,
	})
}
