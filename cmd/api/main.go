package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikhilbhutani/vaultmind/internal/api"
	"github.com/nikhilbhutani/vaultmind/internal/app"
	"github.com/nikhilbhutani/vaultmind/internal/config"
	"github.com/nikhilbhutani/vaultmind/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		// The fallback chain still serves runs through the direct LLM tier.
		slog.Warn("vault integration incomplete", "error", err)
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, app.Options{EnqueueRuns: true})
	if err != nil {
		slog.Error("failed to initialise services", "error", err)
		os.Exit(1)
	}

	deps := api.Deps{
		Config:         cfg,
		Intake:         a.Intake,
		Feedback:       a.Feedback,
		Templates:      a.Templates,
		Selector:       a.Selector,
		Charges:        a.Ledger,
		LLM:            a.LLM,
		Redis:          a.Redis,
		Health:         a.HealthChecks(),
		Metrics:        a.Metrics,
		MetricsHandler: metrics.Handler(a.Registry),
	}
	if a.Cache != nil {
		deps.Cache = a.Cache
	}
	if a.Publisher != nil {
		deps.Events = a.Publisher
	}

	router := api.NewRouter(deps)
	handler := router.Setup()

	srv := api.NewServer(cfg.Addr(), handler)

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "queue", a.Queue != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	a.Close()
	slog.Info("server stopped")
}
