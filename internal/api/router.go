package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "zapgate/internal/api/context"
	"zapgate/internal/api/handlers"
	"zapgate/internal/api/middleware"
	"zapgate/internal/engine/actions"
	"zapgate/internal/engine/gateway"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/pkg/errors"
	"zapgate/internal/platform/auth"
)

type Dependencies struct {
	Routes            []actions.Route
	InboundHandler    *handlers.InboundHandler
	VerifyHandler     *handlers.VerifyHandler
	HealthHandler     *handlers.HealthHandler
	MetricsHandler    *handlers.MetricsHandler
	BindingHandler    *handlers.BindingHandler
	WebhookLogHandler *handlers.WebhookLogHandler
	StatsHandler      *handlers.StatsHandler
	WebhookToken      *middleware.WebhookToken
	AuthMiddleware    *middleware.AuthMiddleware
	TenantMiddleware  *middleware.TenantMiddleware
	RateLimiter       *middleware.RateLimiter
	InboundRateLimit  int
	MetricsPath       string
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(notFound)
	router.MethodNotAllowed = http.HandlerFunc(notFound)

	router.GET("/healthz", wrap(deps.HealthHandler.Live))
	router.GET("/readyz", wrap(deps.HealthHandler.Ready))
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, wrap(deps.MetricsHandler.Export))
	}

	// WhatsApp automation webhooks. The token is checked first so a bad
	// credential is always an audited 401 and never spends the bucket.
	inboundLimit := middleware.RateLimit(deps.RateLimiter, "inbound", deps.InboundRateLimit)
	for _, route := range deps.Routes {
		router.POST(route.Path, chain(deps.InboundHandler.Handle(route.EventType),
			deps.WebhookToken.For(route.EventType), inboundLimit))
	}

	// Meta subscription handshake
	router.GET("/whatsapp/webhook", wrap(deps.VerifyHandler.Verify))
	router.POST("/whatsapp/webhook", wrap(deps.VerifyHandler.Receive))

	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware
	managers := requireRole(string(permissions.RoleVereador), string(permissions.RoleChefeGabinete))

	// Binding management
	router.POST("/api/v1/bindings",
		chain(deps.BindingHandler.Create, authMid.Handle, tenantMid.Handle, managers))
	router.GET("/api/v1/bindings",
		chain(deps.BindingHandler.List, authMid.Handle, tenantMid.Handle))
	router.PATCH("/api/v1/bindings/:binding_id",
		chain(deps.BindingHandler.Update, authMid.Handle, tenantMid.Handle, managers))
	router.DELETE("/api/v1/bindings/:binding_id",
		chain(deps.BindingHandler.Deactivate, authMid.Handle, tenantMid.Handle, managers))

	// Integration log
	router.GET("/api/v1/webhook-events",
		chain(deps.WebhookLogHandler.List, authMid.Handle, tenantMid.Handle))
	router.POST("/api/v1/webhook-test",
		chain(deps.WebhookLogHandler.Test, authMid.Handle, tenantMid.Handle, managers))
	router.GET("/api/v1/stats",
		chain(deps.StatsHandler.Get, authMid.Handle, tenantMid.Handle))

	return router
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(gateway.ErrorBody(gateway.NotFound, ""))
}

// chain applies middlewares outermost first.
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
			if !ok {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next(w, r)
					return
				}
			}

			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
		}
	}
}
