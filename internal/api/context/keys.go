// Package context holds the request-context keys shared by middleware and
// handlers.
package context

type Key string

const (
	Claims Key = "claims" // *auth.Claims
	Tenant Key = "tenant" // *middleware.TenantContext
	Params Key = "params" // httprouter.Params
)
