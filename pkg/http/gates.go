package fthttp

import (
	"net/http"

	"github.com/ftauth/identity/internal/model"
)

// Gates composes the middleware attached to each named route. The mTLS gate
// is applied only to routes for which RequireMTLSFor returns true.
type Gates struct {
	Middleware     *Middleware
	RequireMTLSFor func(route string) bool
}

func (g *Gates) transport(route string, h http.Handler) http.Handler {
	if g.RequireMTLSFor != nil && g.RequireMTLSFor(route) {
		return RequireMTLS(h)
	}
	return h
}

// Public wraps a route that needs no caller identity.
func (g *Gates) Public(route string, h http.Handler) http.Handler {
	return g.transport(route, h)
}

// Authenticated wraps a route that requires a valid access token.
func (g *Gates) Authenticated(route string, h http.Handler) http.Handler {
	return g.transport(route, g.Middleware.Authenticate(h))
}

// Role wraps a route that requires a valid access token held by one of roles.
// Authentication always runs before the role check.
func (g *Gates) Role(route string, h http.Handler, roles ...model.Role) http.Handler {
	return g.transport(route, g.Middleware.Authenticate(Authorize(roles...)(h)))
}
