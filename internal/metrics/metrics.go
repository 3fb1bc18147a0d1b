package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service's Prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ProcessingRuns     *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	TierFailures       *prometheus.CounterVec
	DegradedRuns       prometheus.Counter
	ProcessingCostUSD  prometheus.Counter
	PersistFailures    prometheus.Counter

	FeedbackTotal  *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	PatientsIntake *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		ProcessingRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "runs_total",
			Help:      "Completed processing runs by the tier that produced the summary.",
		}, []string{"tier"}),

		ProcessingDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "duration_seconds",
			Help:      "End-to-end processing latency by final tier.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"tier"}),

		TierFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "tier_failures_total",
			Help:      "Tier attempts that failed and fell through, by tier and reason.",
		}, []string{"tier", "reason"}),

		DegradedRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "degraded_total",
			Help:      "Runs answered by the static fallback. Alert if rising.",
		}),

		ProcessingCostUSD: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "cost_usd_total",
			Help:      "Accumulated model cost in USD.",
		}),

		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "persist_failures_total",
			Help:      "Outcomes that could not be written back to the patient store.",
		}),

		FeedbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "submissions_total",
			Help:      "Feedback submissions by prompt version.",
		}, []string{"prompt_version"}),

		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Notifications that could not be delivered, by sink.",
		}, []string{"sink"}),

		PatientsIntake: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patients",
			Name:      "intake_total",
			Help:      "Patients created by source.",
		}, []string{"source"}),
	}
}

func (c *Collector) ObserveRun(tier string, d time.Duration, costUSD float64, degraded bool) {
	if c == nil {
		return
	}
	c.ProcessingRuns.WithLabelValues(tier).Inc()
	c.ProcessingDuration.WithLabelValues(tier).Observe(d.Seconds())
	if costUSD > 0 {
		c.ProcessingCostUSD.Add(costUSD)
	}
	if degraded {
		c.DegradedRuns.Inc()
	}
}

func (c *Collector) TierFailed(tier, reason string) {
	if c == nil {
		return
	}
	c.TierFailures.WithLabelValues(tier, reason).Inc()
}

func (c *Collector) PersistFailed() {
	if c == nil {
		return
	}
	c.PersistFailures.Inc()
}

func (c *Collector) FeedbackReceived(promptVersion string) {
	if c == nil {
		return
	}
	c.FeedbackTotal.WithLabelValues(promptVersion).Inc()
}

func (c *Collector) EventDropped(sink string) {
	if c == nil {
		return
	}
	c.EventsDropped.WithLabelValues(sink).Inc()
}

func (c *Collector) PatientCreated(source string) {
	if c == nil {
		return
	}
	c.PatientsIntake.WithLabelValues(source).Inc()
}

func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
