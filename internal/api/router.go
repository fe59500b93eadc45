// Package api exposes the export controller, render history and live
// monitor over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/satindergrewal/lyricast/internal/history"
	"github.com/satindergrewal/lyricast/internal/project"
	"github.com/satindergrewal/lyricast/internal/session"
	"github.com/satindergrewal/lyricast/internal/stream"
)

// Monitor bundles the live-listening endpoints.
type Monitor struct {
	Broadcaster *stream.Broadcaster
	Stream      http.Handler // GET, MP3
	Offer       http.Handler // POST, WebRTC SDP exchange
}

// NewRouter creates the Chi router with all routes and middleware. store and
// monitor are optional.
func NewRouter(
	ctrl *session.Controller,
	store *history.Store,
	monitor *Monitor,
	defaults project.RenderConfig,
	logger *slog.Logger,
) *chi.Mux {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	exportH := NewExportHandler(ctrl, monitor, defaults, logger)

	r.Get("/health", health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", exportH.Status)
		r.Route("/exports", func(r chi.Router) {
			r.Post("/", exportH.Start)
			r.Post("/abort", exportH.Abort)
			r.Get("/latest", exportH.Latest)
		})

		if store != nil {
			historyH := NewHistoryHandler(store)
			r.Route("/history", func(r chi.Router) {
				r.Get("/", historyH.List)
				r.Get("/{id}", historyH.Get)
			})
		}
	})

	if monitor != nil {
		r.Route("/monitor", func(r chi.Router) {
			r.Method(http.MethodGet, "/stream", monitor.Stream)
			r.Method(http.MethodPost, "/offer", monitor.Offer)
		})
	}

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
