package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all workflow routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.HandleCreateRun)
		r.Get("/", h.HandleListRuns)
		r.Get("/best", h.HandleBestRun)
		r.Get("/active", h.HandleActiveRuns)
		r.Get("/{id}", h.HandleGetRun)
		r.Post("/{id}/cancel", h.HandleCancelRun)
		r.Get("/{id}/stream", h.HandleRunStream)
	})

	r.Post("/hamiltonian/parse", h.HandleParseHamiltonian)
	r.Get("/molecule", h.HandleGetMolecule)

	r.Route("/noise-models", func(r chi.Router) {
		r.Get("/", h.HandleListNoiseModels)
		r.Get("/{name}", h.HandleGetNoiseModel)
	})
}
