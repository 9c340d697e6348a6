// Interview session service: authoritative session records, reconnection
// handshake, and room-driven pause/resume.
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

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/api"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/cache"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/config"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/gateway"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/interview"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/middleware"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/reaper"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/reconnect"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/repo"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/room"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	st, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := st.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	cacheCfg := cache.DefaultConfig(cfg.Cache.Path, cfg.Cache.TTL)
	if cfg.Cache.InMemory {
		cacheCfg = cache.InMemoryConfig(cfg.Cache.TTL)
	}
	cacheCfg.Logger = logger
	sessionCache, err := cache.NewBadger(cacheCfg)
	if err != nil {
		slog.Error("Failed to initialize read cache", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessionCache.Close(); closeErr != nil {
			slog.Error("Failed to close read cache", "error", closeErr)
		}
	}()
	slog.Info("Read cache ready", "in_memory", cfg.Cache.InMemory, "ttl", cfg.Cache.TTL)

	sessions := repo.New(st, sessionCache, logger)

	// Interviewer backend (optional). Without a key the service still runs:
	// turns are recorded, no follow-up questions are generated.
	var generator interview.Generator
	if gen, err := interview.NewOpenAIGenerator(); err != nil {
		slog.Warn("Interviewer backend disabled", "error", err)
	} else {
		generator = gen
	}

	// Room membership drives paused/active through the coordinator.
	hub := room.NewHub(cfg.GracePeriod, logger)
	defer hub.Stop()
	coord := reconnect.New(sessions, hub, logger)
	hub.AddConsumer(coord)
	slog.Info("Room hub ready", "grace_period", cfg.GracePeriod)

	// Initialize handlers.
	baseHandler := api.NewHandler(sessions, coord, generator)
	wsHandler := gateway.NewWebSocketHandler(sessions, coord, hub, generator, cfg.FrontendURL, cfg.IsDevelopment())
	// After the coordinator: relayed status frames must reflect its transitions.
	hub.AddConsumer(wsHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	baseHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/session", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket connections
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Abandonment sweep for sessions nobody came back to.
	reaper.Start(ctx, sessions, cfg.SweepInterval, cfg.AbandonAfter)
	slog.Info("Abandonment reaper started", "interval", cfg.SweepInterval, "abandon_after", cfg.AbandonAfter)

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
