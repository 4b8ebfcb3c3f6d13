package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/internlink/auth-api/internal/auth"
	"github.com/internlink/auth-api/internal/background"
	"github.com/internlink/auth-api/internal/config"
	"github.com/internlink/auth-api/internal/database"
	"github.com/internlink/auth-api/internal/handlers"
	middlewareCustom "github.com/internlink/auth-api/internal/middleware"
	"github.com/internlink/auth-api/internal/repositories"
	"github.com/internlink/auth-api/internal/routes"
	"github.com/internlink/auth-api/internal/services"
	pkghttp "github.com/internlink/auth-api/pkg/http"
	pkglogger "github.com/internlink/auth-api/pkg/logger"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("lockout_store", cfg.Auth.LockoutStore))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)

	// Select the lockout backend. Postgres relies on a background sweep for
	// expiry; Mongo expires records with a TTL index.
	var lockoutStore services.LockoutStore
	var cleanupManager *background.CleanupManager
	var mongoDB *database.MongoDB

	switch cfg.Auth.LockoutStore {
	case "mongo":
		mongoDB, err = database.NewMongoConnection(&cfg.Mongo, logger)
		if err != nil {
			logger.Error("failed to connect to mongodb", slog.Any("error", err))
			os.Exit(1)
		}

		mongoRepo := repositories.NewMongoLockoutRepository(mongoDB)

		indexCtx, indexCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mongoRepo.EnsureIndexes(indexCtx); err != nil {
			indexCancel()
			logger.Error("failed to create lockout indexes", slog.Any("error", err))
			os.Exit(1)
		}
		indexCancel()

		lockoutStore = mongoRepo
	default:
		pgRepo := repositories.NewLockoutRepository(db)
		lockoutStore = pgRepo
		cleanupManager = background.NewCleanupManager(pgRepo, logger, cfg.Auth.CleanupInterval)
	}

	// AWS SES lock notices, disabled unless a from address is configured
	var notifier services.LockoutNotifier
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewAWSSESLockoutNotifier(
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.SupportURL,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	lockoutService := services.NewLockoutService(lockoutStore, notifier, logger)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayJitterMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	authService := services.NewAuthService(userRepo, lockoutService, tokenManager, timingDelay, logger, auditLogger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger, &pkghttp.IPConfig{
		TrustedProxies: cfg.Server.TrustedProxies,
	}))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, lockoutService, tokenManager)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	if cleanupManager != nil {
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	if mongoDB != nil {
		mongoDB.Close(shutdownCtx)
	}

	logger.Info("server stopped gracefully")
}
