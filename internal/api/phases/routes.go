package phases

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers phase management routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/phases", func(r chi.Router) {
		r.Get("/", h.ListPhases)
		r.Post("/", h.PublishPhase)
		r.Get("/config", h.GetConfig)
		r.Put("/active", h.ActivatePhase)
		r.Delete("/{phase}", h.RetirePhase)
	})
}
