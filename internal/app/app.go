// Package app assembles the services shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/vaultmind/internal/api/handlers"
	"github.com/nikhilbhutani/vaultmind/internal/audit"
	"github.com/nikhilbhutani/vaultmind/internal/cache"
	"github.com/nikhilbhutani/vaultmind/internal/config"
	"github.com/nikhilbhutani/vaultmind/internal/database"
	"github.com/nikhilbhutani/vaultmind/internal/feedback"
	"github.com/nikhilbhutani/vaultmind/internal/intake"
	"github.com/nikhilbhutani/vaultmind/internal/llm"
	"github.com/nikhilbhutani/vaultmind/internal/metrics"
	"github.com/nikhilbhutani/vaultmind/internal/notify"
	"github.com/nikhilbhutani/vaultmind/internal/patient"
	"github.com/nikhilbhutani/vaultmind/internal/processing"
	"github.com/nikhilbhutani/vaultmind/internal/prompt"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
	"github.com/nikhilbhutani/vaultmind/internal/vault"
)

const metricsNamespace = "vaultmind"

// App holds the wired services. DB, Redis, Cache, Publisher and Queue are
// nil when the backing service is unavailable or disabled.
type App struct {
	Config *config.Config

	DB        *pgxpool.Pool
	Redis     *redis.Client
	Cache     *cache.Cache
	Publisher *notify.RedisPublisher
	Queue     *queue.Client

	Registry     *prometheus.Registry
	Metrics      *metrics.Collector
	Patients     patient.Store
	Ledger       audit.Ledger
	Templates    *prompt.Registry
	Selector     *prompt.Selector
	LLM          llm.Gateway
	Orchestrator *processing.Orchestrator
	Feedback     *feedback.Aggregator
	Intake       *intake.Service

	dispatcher *notify.Dispatcher
}

// Options controls the parts that differ between binaries.
type Options struct {
	// EnqueueRuns sends processing runs to the task queue instead of
	// running them in the request.
	EnqueueRuns bool
}

// New connects to Postgres and Redis when they are reachable and falls back
// to in-memory stores and a local lock when they are not.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewCollector(a.Registry, metricsNamespace)

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, using in-memory stores", "error", err)
	} else {
		a.DB = db
		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache, events or shared locks", "error", err)
		rdb.Close()
	} else {
		a.Redis = rdb
		a.Cache = cache.NewCache(rdb)
		a.Publisher = notify.NewRedisPublisher(rdb, cfg.Notify.EventsChannel)
	}

	var templateStore prompt.Store
	var feedbackStore feedback.Store
	if a.DB != nil {
		a.Patients = patient.NewPostgresStore(a.DB)
		a.Ledger = audit.NewPostgresLedger(a.DB)
		templateStore = prompt.NewPostgresStore(a.DB)
		feedbackStore = feedback.NewPostgresStore(a.DB)
	} else {
		a.Patients = patient.NewMemoryStore()
		a.Ledger = audit.NewMemoryLedger()
		templateStore = prompt.NewMemoryStore()
		feedbackStore = feedback.NewMemoryStore()
	}

	a.Templates = prompt.NewRegistry(templateStore)
	seeded, err := a.Templates.EnsureSeeded(ctx, prompt.Catalog)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("seed prompt templates: %w", err)
	}
	if seeded > 0 {
		slog.Info("seeded prompt templates", "count", seeded)
	}
	a.Selector = prompt.NewSelector(a.Templates)

	events := a.emitter()

	var locker processing.Locker = processing.NewLocalLocker()
	if a.Cache != nil {
		locker = processing.NewRedisLocker(a.Cache, cfg.Processing.LockTTL)
	}

	vc := vault.NewClient(cfg.Vault)
	a.LLM = llm.NewGateway(cfg.LLM)
	a.Orchestrator = processing.New(processing.Deps{
		Selector:    a.Selector,
		Costs:       a.Templates,
		Patients:    a.Patients,
		Vault:       vc,
		Detokenizer: vc,
		LLM:         a.LLM,
		Ledger:      a.Ledger,
		Events:      events,
		Metrics:     a.Metrics,
		Locker:      locker,
	}, processing.OptionsFromConfig(cfg))

	a.Feedback = feedback.NewAggregator(feedbackStore, a.Templates, a.Patients, events, a.Metrics)

	deps := intake.Deps{
		Patients:  a.Patients,
		Vault:     vc,
		Processor: a.Orchestrator,
		Events:    events,
		Metrics:   a.Metrics,
	}
	if opts.EnqueueRuns && cfg.Queue.Enabled && a.Redis != nil {
		a.Queue = queue.NewClient(cfg.Redis)
		deps.Queue = a.Queue
	}
	a.Intake = intake.NewService(deps)

	return a, nil
}

func (a *App) emitter() notify.Emitter {
	var sinks notify.Multi
	if a.Publisher != nil {
		sinks = append(sinks, a.Publisher)
	}
	if a.Config.Notify.WebhookURL != "" {
		a.dispatcher = notify.NewDispatcher(a.Config.Notify.WebhookURL, a.Config.Notify.WebhookSecret,
			notify.WithDropHook(func() { a.Metrics.EventDropped("webhook") }))
		sinks = append(sinks, a.dispatcher)
	}
	if len(sinks) == 0 {
		return notify.Nop{}
	}
	return sinks
}

// HealthChecks reports the dependencies readiness depends on.
func (a *App) HealthChecks() map[string]handlers.Check {
	checks := make(map[string]handlers.Check)
	if a.DB != nil {
		checks["database"] = a.DB.Ping
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close waits for in-flight runs, drains pending webhook deliveries and
// releases connections.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Wait()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			slog.Warn("close queue client", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
