package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the control surface of app
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", app.ListRunsHandler)
		r.Post("/organize", app.StartOrganizeHandler)
		r.Post("/search", app.StartSearchHandler)
		r.Get("/{id}", app.RunStatusHandler)
		r.Get("/{id}/log", app.RunLogHandler)
		r.Get("/{id}/events", app.RunEventsHandler)
		r.Post("/{id}/pause", app.ControlHandler(controlPause))
		r.Post("/{id}/resume", app.ControlHandler(controlResume))
		r.Post("/{id}/stop", app.ControlHandler(controlStop))
	})

	r.Get("/undo", app.LedgerHandler)
	r.Post("/undo/last", app.UndoLastHandler)
	r.Post("/undo/all", app.UndoAllHandler)
	r.Post("/undo/drop", app.DropLastHandler)

	r.Get("/sessions", app.ListSessionsHandler)
	r.Get("/sessions/last", app.LastSessionHandler)

	return r
}
