package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/vaultmind/internal/api/handlers"
	"github.com/nikhilbhutani/vaultmind/internal/api/middleware"
	"github.com/nikhilbhutani/vaultmind/internal/auth"
	"github.com/nikhilbhutani/vaultmind/internal/config"
	"github.com/nikhilbhutani/vaultmind/internal/feedback"
	"github.com/nikhilbhutani/vaultmind/internal/intake"
	"github.com/nikhilbhutani/vaultmind/internal/llm"
	"github.com/nikhilbhutani/vaultmind/internal/metrics"
)

// Deps are the services the HTTP surface is built on. Optional fields may
// be nil: Redis, Cache, Events, MetricsHandler.
type Deps struct {
	Config         *config.Config
	Intake         *intake.Service
	Feedback       *feedback.Aggregator
	Templates      handlers.TemplateReader
	Selector       handlers.TemplateSelector
	Charges        handlers.ChargeLister
	LLM            llm.Gateway
	Redis          *redis.Client
	Cache          handlers.Cacher
	Events         handlers.Subscriber
	Health         map[string]handlers.Check
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
}

type Router struct {
	mux  *chi.Mux
	deps Deps
	jwt  *auth.JWTMiddleware
}

func NewRouter(deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		deps: deps,
		jwt:  auth.NewJWTMiddleware(deps.Config.Auth.JWTSecret),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Health endpoints (no rate limit)
	health := handlers.NewHealthHandler(rt.deps.Health)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.MetricsHandler)
	}

	rl := middleware.NewRateLimiter(rt.deps.Redis, cfg.Server.RateLimit, cfg.Server.RateWindow)

	r.Route("/api", func(r chi.Router) {
		r.Use(rl.Limit)

		// Patient routes
		patientH := handlers.NewPatientHandler(rt.deps.Intake)
		adminH := handlers.NewAdminHandler(rt.deps.Charges)
		r.Route("/patients", func(r chi.Router) {
			r.Post("/", patientH.Create)
			r.Get("/", patientH.List)
			r.Post("/batch", patientH.BatchCreate)
			r.Post("/batch/upload", patientH.BatchUpload)
			r.Post("/upload-document", patientH.UploadDocument)
			r.With(rt.jwt.Authenticate, auth.RequirePermission(auth.PermPatientsReset)).
				Delete("/reset", patientH.Reset)
			r.Get("/{id}", patientH.Get)
			r.Post("/{id}/reprocess", patientH.Reprocess)
			r.With(rt.jwt.Authenticate, auth.RequirePermission(auth.PermPatientsDecrypt)).
				Post("/{id}/decrypt", patientH.Decrypt)
			r.Get("/{id}/charges", adminH.Charges)
		})

		// Feedback routes
		feedbackH := handlers.NewFeedbackHandler(rt.deps.Feedback, rt.deps.Cache)
		r.Route("/feedback", func(r chi.Router) {
			r.Post("/", feedbackH.Submit)
			r.Get("/stats", feedbackH.Stats)
			r.Get("/prompts/performance", feedbackH.PromptPerformance)
			r.Get("/improvement-trend", feedbackH.ImprovementTrend)
			r.Get("/insights", feedbackH.Insights)
			r.With(rt.jwt.Authenticate, auth.RequirePermission(auth.PermPromptsEvolve)).
				Post("/evolve", feedbackH.Evolve)
		})

		// Prompt routes
		promptH := handlers.NewPromptHandler(rt.deps.Templates, rt.deps.Selector)
		r.Route("/prompts", func(r chi.Router) {
			r.Get("/", promptH.List)
			r.Get("/select", promptH.Select)
			r.Get("/{version}", promptH.Get)
		})

		if rt.deps.LLM != nil {
			llmH := handlers.NewLLMHandler(rt.deps.LLM)
			r.Get("/llm/models", llmH.Models)
		}

		webhookH := handlers.NewWebhookHandler(rt.deps.Intake, cfg.Notify.WebhookSecret)
		r.Post("/webhooks/process-patient", webhookH.ProcessPatient)
	})

	// The event stream is long-lived; it sits outside the rate limiter.
	if rt.deps.Events != nil {
		eventsH := handlers.NewEventsHandler(rt.deps.Events)
		r.Get("/api/events", eventsH.Stream)
	}

	return r
}
