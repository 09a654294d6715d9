package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/mocsync/internal/mocservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *mocservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/registry", h.ListRegistry)
	r.Get("/registry/resolve", h.Resolve)
	r.Get("/registry/links", h.IndexLinks)
	r.Post("/registry/rebuild", h.Rebuild)

	r.Get("/classify", h.Classify)
	r.Post("/sync", h.Sync)
	r.Get("/journal", h.Journal)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
