package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/vaultmind/internal/metrics"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/notify"
)

const (
	TrendImproving        = "improving"
	TrendStable           = "stable"
	TrendDeclining        = "declining"
	TrendInsufficientData = "insufficient_data"
)

type Registry interface {
	Get(ctx context.Context, version string) (*models.PromptTemplate, error)
	ListAll(ctx context.Context) ([]models.PromptTemplate, error)
	RecordUsage(ctx context.Context, version string, rating int) (*models.PromptTemplate, error)
	Promote(ctx context.Context, version string) error
}

type PatientReader interface {
	Get(ctx context.Context, id string) (*models.Patient, error)
	ListProcessed(ctx context.Context, limit int) ([]models.Patient, error)
	ProcessedSince(ctx context.Context, since time.Time) ([]models.Patient, error)
}

// Aggregator closes the loop between doctor ratings and template selection.
type Aggregator struct {
	store    Store
	registry Registry
	patients PatientReader
	events   notify.Emitter
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewAggregator(store Store, registry Registry, patients PatientReader, events notify.Emitter, m *metrics.Collector) *Aggregator {
	if events == nil {
		events = notify.Nop{}
	}
	return &Aggregator{
		store:    store,
		registry: registry,
		patients: patients,
		events:   events,
		metrics:  m,
		now:      time.Now,
	}
}

type Submission struct {
	PatientID      string `json:"patient_id"`
	DoctorID       string `json:"doctor_id"`
	AccuracyRating int    `json:"accuracy_rating"`
	Corrections    string `json:"corrections"`
	SummaryQuality string `json:"summary_quality"`
	// PromptVersion overrides attribution to the patient's last run.
	PromptVersion string `json:"prompt_version,omitempty"`
}

func (s Submission) validate() error {
	var fields []string
	if strings.TrimSpace(s.PatientID) == "" {
		fields = append(fields, "patient_id is required")
	}
	if s.AccuracyRating < 1 || s.AccuracyRating > 5 {
		fields = append(fields, "accuracy_rating must be between 1 and 5")
	}
	if len(fields) > 0 {
		return models.NewValidationError(fields...)
	}
	return nil
}

// StoreFeedback appends the rating and folds it into the attributed
// template's running mean.
func (a *Aggregator) StoreFeedback(ctx context.Context, sub Submission) (*models.Feedback, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	version, err := a.attribute(ctx, sub)
	if err != nil {
		return nil, err
	}

	f := &models.Feedback{
		ID:             uuid.NewString(),
		PatientID:      sub.PatientID,
		DoctorID:       orDefault(sub.DoctorID, "anonymous"),
		AccuracyRating: sub.AccuracyRating,
		Corrections:    sub.Corrections,
		SummaryQuality: orDefault(sub.SummaryQuality, "good"),
		Timestamp:      a.now().UTC(),
		PromptVersion:  version,
	}
	if err := a.store.Append(ctx, f); err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}

	if _, err := a.registry.RecordUsage(ctx, version, f.AccuracyRating); err != nil {
		return nil, fmt.Errorf("update template %s: %w", version, err)
	}
	a.metrics.FeedbackReceived(version)

	if err := a.events.Emit(ctx, notify.EventFeedbackReceived, f); err != nil {
		slog.Warn("failed to emit feedback event", "feedback_id", f.ID, "error", err)
	}

	slog.Info("feedback recorded", "feedback_id", f.ID, "patient_id", f.PatientID, "prompt_version", version, "rating", f.AccuracyRating)
	return f, nil
}

// attribute resolves the template a rating belongs to: the explicit version
// when given, otherwise the one that produced the patient's current summary.
func (a *Aggregator) attribute(ctx context.Context, sub Submission) (string, error) {
	if sub.PromptVersion != "" {
		if _, err := a.registry.Get(ctx, sub.PromptVersion); err != nil {
			return "", err
		}
		return sub.PromptVersion, nil
	}

	p, err := a.patients.Get(ctx, sub.PatientID)
	if err != nil {
		return "", err
	}
	if !p.Processed || p.PromptVersion == "" {
		return "", models.NewValidationError(fmt.Sprintf("patient %s has no processed summary to rate", sub.PatientID))
	}
	return p.PromptVersion, nil
}

type Distribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
}

type Stats struct {
	TotalFeedback       int          `json:"total_feedback"`
	AvgRating           float64      `json:"avg_rating"`
	Trend               string       `json:"trend"`
	QualityDistribution Distribution `json:"quality_distribution"`
	PeriodDays          int          `json:"period_days"`
	Interpretation      string       `json:"interpretation"`
}

// Stats summarizes feedback from the trailing window. The trend compares the
// older half of the window with the newer half.
func (a *Aggregator) Stats(ctx context.Context, windowDays int) (*Stats, error) {
	windowDays = normalizeWindow(windowDays)
	records, err := a.store.Since(ctx, a.windowStart(windowDays))
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}

	st := &Stats{PeriodDays: windowDays, Trend: TrendInsufficientData}
	total := len(records)
	if total == 0 {
		st.Interpretation = interpret(st)
		return st, nil
	}

	ratings := make([]float64, total)
	for i, f := range records {
		ratings[i] = float64(f.AccuracyRating)
		switch {
		case f.AccuracyRating == 5:
			st.QualityDistribution.Excellent++
		case f.AccuracyRating == 4:
			st.QualityDistribution.Good++
		case f.AccuracyRating == 3:
			st.QualityDistribution.Fair++
		default:
			st.QualityDistribution.Poor++
		}
	}

	st.TotalFeedback = total
	st.AvgRating = round2(mean(ratings))

	if mid := total / 2; mid > 0 {
		older, newer := mean(ratings[:mid]), mean(ratings[mid:])
		switch {
		case math.Abs(newer-older) < 1e-9:
			st.Trend = TrendStable
		case newer > older:
			st.Trend = TrendImproving
		default:
			st.Trend = TrendDeclining
		}
	}

	st.Interpretation = interpret(st)
	return st, nil
}

func interpret(st *Stats) string {
	if st.TotalFeedback == 0 {
		return "No feedback data available yet. Start submitting feedback to see improvements."
	}

	var quality string
	switch {
	case st.AvgRating >= 4.5:
		quality = "excellent"
	case st.AvgRating >= 3.5:
		quality = "good"
	case st.AvgRating >= 2.5:
		quality = "fair"
	default:
		quality = "needs improvement"
	}

	out := fmt.Sprintf("System performance is %s (avg rating: %.2f/5).", quality, st.AvgRating)
	switch st.Trend {
	case TrendImproving:
		out += " The system is actively improving based on your feedback."
	case TrendStable:
		out += " Performance is stable. Continue providing feedback for further improvements."
	case TrendDeclining:
		out += " Performance has declined. The system is analyzing patterns to recover."
	}
	return out
}

type PromptPerformance struct {
	Version    string     `json:"version"`
	AvgRating  float64    `json:"avg_rating"`
	UsageCount int        `json:"usage_count"`
	AvgCost    float64    `json:"avg_cost"`
	Active     bool       `json:"active"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
}

// PromptPerformance lists every template, best rated first.
func (a *Aggregator) PromptPerformance(ctx context.Context) ([]PromptPerformance, error) {
	templates, err := a.registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]PromptPerformance, 0, len(templates))
	for _, t := range templates {
		out = append(out, PromptPerformance{
			Version:    t.Version,
			AvgRating:  t.AvgRating,
			UsageCount: t.UsageCount,
			AvgCost:    t.AvgCost,
			Active:     t.Active,
			LastUsed:   t.LastUsed,
		})
	}
	return out, nil
}

func (a *Aggregator) windowStart(windowDays int) time.Time {
	return a.now().UTC().AddDate(0, 0, -windowDays)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
