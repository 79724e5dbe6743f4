package ui

import "github.com/go-chi/chi/v5"

// Prefix is where the server mounts the UI.
const Prefix = "/ui"

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	r.Get("/", ui.HandleSessionList)
	r.Get("/sessions/{id}", ui.HandleSessionDetail)
}
