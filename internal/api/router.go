package api

import (
	"net/http"
	"time"

	"github.com/example/btc-guess/internal/api/middleware"
	"github.com/example/btc-guess/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, tokens middleware.TokenValidator, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(metrics.Middleware)

	requireAuth := middleware.AuthMiddleware(tokens)

	r.Get("/", handlers.Home)
	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Auth
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandlers.Register)
		r.Post("/login", authHandlers.Login)
		r.With(requireAuth).Get("/me", authHandlers.Me)
	})

	// Price snapshots
	r.Route("/price-snapshots", func(r chi.Router) {
		r.Get("/", handlers.ListSnapshots)
		r.Get("/latest", handlers.LatestSnapshot)
	})

	// Guesses
	r.Route("/guesses", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", handlers.PlaceGuess)
		r.Get("/", handlers.ListGuesses)
		r.Get("/me", handlers.MyGuesses)
	})

	return r
}
