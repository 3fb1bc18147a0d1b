package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/vaultmind/internal/app"
	"github.com/nikhilbhutani/vaultmind/internal/config"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
	"github.com/nikhilbhutani/vaultmind/internal/queue/workers"
)

const snapshotWindowDays = 1

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		slog.Error("failed to initialise services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	redisOpt := queue.RedisOpt(cfg.Redis)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			queue.QueueCritical: 6,
			queue.QueueDefault:  3,
			queue.QueueLow:      1,
		},
		Logger: queue.NewLogger(),
	})

	registry := queue.NewHandlersRegistry()

	// Register workers
	registry.Register(queue.TypePatientProcess, workers.NewPatientWorker(a.Orchestrator))
	registry.Register(queue.TypeMetricsSnapshot, workers.NewSnapshotWorker(a.Feedback))
	registry.Register(queue.TypePromptsEvolve, workers.NewEvolveWorker(a.Feedback))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: queue.NewLogger()})
	snapshot, err := queue.NewMetricsSnapshotTask(snapshotWindowDays)
	if err != nil {
		slog.Error("failed to build snapshot task", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register("@every 1h", snapshot); err != nil {
		slog.Error("failed to schedule snapshot", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register("@daily", queue.NewPromptsEvolveTask()); err != nil {
		slog.Error("failed to schedule prompt evolution", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	srv.Shutdown()
	slog.Info("worker stopped")
}
