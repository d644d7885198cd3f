package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	apiContext "zapgate/internal/api/context"
	"zapgate/internal/pkg/errors"
	"zapgate/internal/platform/auth"
	"zapgate/internal/platform/repositories"
)

// TenantContext is the gabinete every admin request is scoped to.
type TenantContext struct {
	GabineteID   string
	GabineteNome string
	UserID       string
	Role         string
}

type TenantMiddleware struct {
	repo *repositories.BindingRepository
}

func NewTenantMiddleware(repo *repositories.BindingRepository) *TenantMiddleware {
	return &TenantMiddleware{repo: repo}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		g, err := m.repo.GetGabinete(r.Context(), claims.GabineteID)
		if err != nil {
			log.Error().Err(err).Str("gabinete_id", claims.GabineteID).Msg("failed to load gabinete")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load gabinete", nil)
			return
		}
		if g == nil {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Gabinete not found", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			GabineteID:   g.ID,
			GabineteNome: g.Nome,
			UserID:       claims.UserID,
			Role:         claims.Role,
		})

		next(w, r.WithContext(ctx))
	}
}

// Tenant returns the request's tenant; only valid behind TenantMiddleware.
func Tenant(r *http.Request) *TenantContext {
	t, _ := r.Context().Value(apiContext.Tenant).(*TenantContext)
	return t
}
