package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/metrics"
	"github.com/DoyleJ11/werewolf-backend/internal/ws"
)

type Deps struct {
	Hub *hub.Hub
	WS  ws.Options
	// Games and Metrics are optional; their routes are skipped when nil.
	Games   GameLister
	Metrics http.Handler
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.WS))
	r.Get("/rooms/{id}", GetRoom(d.Hub))
	if d.Games != nil {
		r.Get("/games", ListGames(d.Games))
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	return r
}
