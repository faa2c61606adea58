package api

import (
	"net/http"

	"github.com/Rrens/slack-gpt/internal/api/handler"
	customMiddleware "github.com/Rrens/slack-gpt/internal/api/middleware"
	"github.com/Rrens/slack-gpt/internal/config"
	"github.com/Rrens/slack-gpt/internal/security"
	"github.com/Rrens/slack-gpt/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Dependencies are the services the ops API exposes
type Dependencies struct {
	Auth        *service.AuthService
	Usage       *service.UsageService
	Sessions    *service.SessionService
	Providers   handler.ProviderLister
	JWT         *security.JWTManager
	RateLimiter customMiddleware.Limiter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))

	authHandler := handler.NewAuthHandler(deps.Auth)
	usageHandler := handler.NewUsageHandler(deps.Usage)
	sessionHandler := handler.NewSessionHandler(deps.Sessions)

	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWT)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Sessions))

		r.Post("/auth/token", authHandler.Token)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			if deps.RateLimiter != nil {
				r.Use(customMiddleware.NewRateLimitMiddleware(deps.RateLimiter).Limit)
			}

			r.Get("/llm-providers", handler.ListLLMProviders(deps.Providers))

			r.Route("/usage", func(r chi.Router) {
				r.Get("/ranking", usageHandler.Ranking)
				r.Get("/users/{userID}", usageHandler.User)
				r.Get("/billing", usageHandler.Billing)
			})

			r.Delete("/sessions/{kind}/{id}", sessionHandler.Delete)
		})
	})

	return r
}
