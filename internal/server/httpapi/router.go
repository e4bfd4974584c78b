package httpapi

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Get("/metrics", h.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/docs", h.CreateDocument)
		r.Route("/docs/{docID}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Put("/", h.ReplaceDocument)
			r.Patch("/", h.AppendDocument)
			r.Delete("/", h.DeleteDocument)
		})

		r.Post("/workspaces", h.CreateWorkspace)
		r.Route("/workspaces/{wsID}", func(r chi.Router) {
			r.Get("/", h.GetWorkspace)
			r.Put("/", h.ReplaceWorkspace)
			r.Delete("/", h.DeleteWorkspace)

			// Scoped document access: the workspace key is authoritative
			// and caps what the embedded entry keys may do.
			r.Route("/docs/{docID}", func(r chi.Router) {
				r.Get("/", h.GetWorkspaceDocument)
				r.Put("/", h.ReplaceWorkspaceDocument)
				r.Patch("/", h.AppendWorkspaceDocument)
				r.Delete("/", h.DeleteWorkspaceDocument)
			})
		})
	})

	return r
}
