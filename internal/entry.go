// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/perthro/internal/api"
	"github.com/starford/perthro/internal/engine"
	"github.com/starford/perthro/internal/history"
	"github.com/starford/perthro/internal/registry"
	"github.com/starford/perthro/internal/sse"
	"github.com/starford/perthro/internal/version"
	"github.com/starford/perthro/internal/watch"
)

// Run starts the serve mode: HTTP API, SSE events, and the deck watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("deck_path", cfg.Deck.Path),
		slog.String("history_path", cfg.History.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	params, err := deckParams(cfg)
	if err != nil {
		return err
	}

	// Initialize the SQLite run history.
	db, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer db.Close()

	// Build the engine with the configured registry provider.
	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithTopicProvider(topicProvider(cfg)),
	)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API service and router.
	svc := api.NewService(eng, db)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the deck and revalidate on change.
	g.Go(func() error {
		return watch.Run(gCtx, watch.Config{
			Engine:   eng,
			Params:   params,
			Store:    db,
			Broker:   broker,
			Logger:   logger,
			Debounce: cfg.Deck.Debounce(),
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// deckParams turns the deck configuration into engine parameters.
func deckParams(cfg *Config) (engine.Params, error) {
	p := engine.Params{
		CurrentRoot:  cfg.Deck.Path,
		PreviousRoot: cfg.Deck.PreviousPath,
	}
	var err error
	if cfg.Deck.PreviousVersion != "" {
		if p.PreviousVersion, err = version.Parse(cfg.Deck.PreviousVersion); err != nil {
			return p, fmt.Errorf("deck.previous_version: %w", err)
		}
	}
	if cfg.Deck.Version != "" {
		if p.CurrentVersion, err = version.Parse(cfg.Deck.Version); err != nil {
			return p, fmt.Errorf("deck.version: %w", err)
		}
	}
	return p, nil
}

// topicProvider builds the registry topic provider selected by the config,
// or nil when the registry check is disabled.
func topicProvider(cfg *Config) registry.TopicProvider {
	switch cfg.Registry.Mode {
	case RegistryModeStatic:
		return registry.Static{Topics: cfg.Registry.Topics}
	case RegistryModeGitHub:
		return &registry.GitHub{
			Owner:   cfg.Registry.Owner,
			Repo:    cfg.Registry.Repo,
			BaseURL: cfg.Registry.BaseURL,
		}
	default:
		return nil
	}
}
