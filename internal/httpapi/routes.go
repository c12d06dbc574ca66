package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pocketplay/scorerace-backend/internal/hub"
	"github.com/pocketplay/scorerace-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes. The websocket route skips the timeout middleware:
	// connections outlive any sane request deadline.
	r.Get("/ws", ws.Handler(h, log))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/matches", CreateMatch(h))
		r.Get("/transport", ResolveTransport)
		r.Get("/healthz", Healthz)
	})

	return r
}
