package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/capstonehub/projectchat/internal/api/middleware"
	"github.com/capstonehub/projectchat/internal/config"
	"github.com/capstonehub/projectchat/internal/handlers"
	"github.com/capstonehub/projectchat/internal/hub"
	"github.com/capstonehub/projectchat/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, messages store.MessageStore, redisStore *store.RedisStore, chatHub *hub.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the dashboard frontend runs on its own origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(messages, redisStore, chatHub)
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/healthz", h.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/api/chats/unread", h.UnreadCount)
		r.Get("/api/chats/stats", h.Stats)
		r.Get("/api/chats/{projectID}/messages", h.History)
		r.Patch("/api/chats/{projectID}/read", h.MarkRead)
		r.Get("/api/chats/{projectID}/presence", h.Presence)

		// WebSocket handshake; credential arrives as ?token=
		r.Get("/ws/chat/{projectID}", h.Chat)
	})

	return r
}
