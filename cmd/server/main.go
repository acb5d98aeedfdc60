// Acharya - Socratic Tutoring Chat Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/samueljohnsiby/acharya-backend/internal/api"
	"github.com/samueljohnsiby/acharya-backend/internal/chat"
	"github.com/samueljohnsiby/acharya-backend/internal/config"
	"github.com/samueljohnsiby/acharya-backend/internal/genai"
	"github.com/samueljohnsiby/acharya-backend/internal/identity"
	"github.com/samueljohnsiby/acharya-backend/internal/middleware"
	"github.com/samueljohnsiby/acharya-backend/internal/ratelimit"
	"github.com/samueljohnsiby/acharya-backend/internal/session"
	"github.com/samueljohnsiby/acharya-backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "model", cfg.GeminiModel)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	var identityOpts []identity.Option
	if cfg.IdentityBaseURL != "" {
		identityOpts = append(identityOpts, identity.WithBaseURL(cfg.IdentityBaseURL))
	}
	provider, err := identity.NewClient(cfg.IdentityAPIKey, identityOpts...)
	if err != nil {
		slog.Error("Failed to initialize identity client", "error", err)
		os.Exit(1)
	}

	var genaiOpts []genai.Option
	if cfg.GeminiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(cfg.GeminiBaseURL))
	}
	generator, err := genai.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, genaiOpts...)
	if err != nil {
		slog.Error("Failed to initialize generation client", "error", err)
		os.Exit(1)
	}

	// The example dialogue is read once at startup and shared read-only by
	// every new session.
	systemPrompt := chat.BuildSystemPrompt(cfg.ExamplePath)
	registry := session.NewRegistry(systemPrompt, cfg.SessionTTL)
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)

	svc, err := chat.NewService(registry, generator, repo, cfg.GenerateTimeout, cfg.PersistTimeout)
	if err != nil {
		slog.Error("Failed to initialize chat service", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	handler := api.NewHandler(svc, provider, repo)
	wsHandler := api.NewChatSocketHandler(svc, provider, limiter)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware. The rate limiter runs before routing, so every
	// endpoint shares the same per-client admission budget.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(limiter.Middleware)

	handler.RegisterRoutes(r)
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout; model calls and sockets are long-lived
		IdleTimeout:  120 * time.Second,
	}

	// Start eviction sweepers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry.Run(ctx, cfg.SessionTTL/4)
	limiter.Run(ctx, cfg.RateWindow)
	slog.Info("Eviction sweepers started", "session_ttl", cfg.SessionTTL, "rate_window", cfg.RateWindow)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
