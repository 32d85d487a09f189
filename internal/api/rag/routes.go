package rag

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers document and question routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/municipalities/{municipality_id}", func(r chi.Router) {
		r.Post("/documents", h.IngestDocument)
		r.Get("/documents", h.ListDocuments)
		r.Post("/questions", h.AskQuestion)
		r.Post("/questions/export", h.ExportAnswer)
	})
}
