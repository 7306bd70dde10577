package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tessera/internal/tileservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *tileservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/config", h.GetConfig)
	r.Get("/layout", h.PreviewLayout)

	// Live workspaces.
	r.Get("/workspaces", h.ListWorkspaces)
	r.Route("/workspaces/{ws}", func(r chi.Router) {
		r.Get("/tiles", h.ListTiles)
		r.Post("/tiles", h.OpenTile)
		r.Delete("/tiles/{kind}/{id}", h.CloseTile)
		r.Patch("/tiles/{kind}/{id}", h.UpdateGeometry)
		r.Post("/tiles/{kind}/{id}/front", h.BringToFront)
		r.Post("/tiles/{kind}/{id}/fullscreen", h.ToggleFullscreen)
		r.Put("/canvas", h.SetCanvas)
	})

	// Remembered geometry.
	r.Get("/tiles", h.ListRemembered)
	r.Get("/tiles/{kind}/{id}", h.GetRemembered)
	r.Put("/tiles/{kind}/{id}", h.PutRemembered)
	r.Delete("/tiles/{kind}/{id}", h.DeleteRemembered)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
