package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/internlink/auth-api/internal/auth"
	"github.com/internlink/auth-api/internal/handlers"
	"github.com/internlink/auth-api/internal/middleware"
	"github.com/internlink/auth-api/internal/services"
)

// RegisterRoutes registers all application routes. The login route carries
// both guards: the blanket per-IP limiter and the per-email lockout guard.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	lockoutService *services.LockoutService,
	tokenManager *auth.TokenManager,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.With(middleware.LoginLockoutGuard(lockoutService)).Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/refresh", authHandler.RefreshToken)
	})

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		r.Get("/auth/me", authHandler.Me)
	})
}
