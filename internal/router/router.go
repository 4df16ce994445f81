package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gemini-chat/internal/handlers"
	"gemini-chat/internal/metrics"
	"gemini-chat/internal/middleware"
)

func New(
	chatHandler *handlers.ChatHandler,
	m *metrics.Metrics,
	logger *zap.Logger,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS(frontendURL))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	// Health check
	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", chatHandler.Chat)
	})

	return r
}
