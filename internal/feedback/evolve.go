package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nikhilbhutani/vaultmind/internal/notify"
)

const (
	ActionContinueTesting    = "continue_testing"
	ActionPromoted           = "promoted"
	ActionContinueABTesting  = "continue_ab_testing"
	ActionContinueMonitoring = "continue_monitoring"

	promoteMinRating = 4.0
	promoteMinUsage  = 10
	similarSpread    = 0.5

	insightsSampleSize  = 100
	insightsMinPatients = 10
	highCostThreshold   = 0.005
)

type Evolution struct {
	Action         string  `json:"action"`
	Version        string  `json:"version,omitempty"`
	BestRating     float64 `json:"best_rating,omitempty"`
	Reason         string  `json:"reason"`
	Recommendation string  `json:"recommendation,omitempty"`
}

// EvolvePrompts applies the promotion rules to the current rankings. Only a
// well-rated, well-used leader is promoted.
func (a *Aggregator) EvolvePrompts(ctx context.Context) (*Evolution, error) {
	templates, err := a.registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if len(templates) < 2 {
		return &Evolution{Action: ActionContinueTesting, Reason: "Insufficient data for evolution"}, nil
	}

	best := templates[0]
	lo, hi := best.AvgRating, best.AvgRating
	for _, t := range templates {
		lo = min(lo, t.AvgRating)
		hi = max(hi, t.AvgRating)
	}

	var ev *Evolution
	switch {
	case best.AvgRating >= promoteMinRating && best.UsageCount >= promoteMinUsage:
		if err := a.registry.Promote(ctx, best.Version); err != nil {
			return nil, fmt.Errorf("promote %s: %w", best.Version, err)
		}
		ev = &Evolution{
			Action:     ActionPromoted,
			Version:    best.Version,
			BestRating: best.AvgRating,
			Reason:     fmt.Sprintf("High performance (rating: %.2f over %d uses)", best.AvgRating, best.UsageCount),
		}
		if err := a.events.Emit(ctx, notify.EventPromptsEvolved, ev); err != nil {
			slog.Warn("failed to emit evolution event", "version", best.Version, "error", err)
		}
	case hi-lo < similarSpread:
		ev = &Evolution{
			Action: ActionContinueABTesting,
			Reason: "Templates performing similarly, need more data",
		}
	default:
		ev = &Evolution{
			Action:         ActionContinueMonitoring,
			Version:        best.Version,
			BestRating:     best.AvgRating,
			Reason:         "Leader has not reached the promotion threshold",
			Recommendation: "Continue monitoring performance",
		}
	}

	slog.Info("prompt evolution evaluated", "action", ev.Action, "leader", best.Version, "spread", hi-lo)
	return ev, nil
}

type DepartmentStats struct {
	Count         int     `json:"count"`
	AvgDurationMs float64 `json:"avg_duration"`
	AvgCost       float64 `json:"avg_cost"`
	TotalDuration int64   `json:"total_duration"`
	TotalCost     float64 `json:"total_cost"`
}

type Recommendation struct {
	Type       string `json:"type"`
	Department string `json:"department"`
	Message    string `json:"message"`
}

type Insights struct {
	Status          string                     `json:"status"`
	Message         string                     `json:"message,omitempty"`
	DepartmentStats map[string]DepartmentStats `json:"department_stats,omitempty"`
	Recommendations []Recommendation           `json:"recommendations"`
	TotalAnalyzed   int                        `json:"total_analyzed"`
}

// Insights breaks down the most recent processed patients by department and
// flags departments whose average cost is high.
func (a *Aggregator) Insights(ctx context.Context) (*Insights, error) {
	recent, err := a.patients.ListProcessed(ctx, insightsSampleSize)
	if err != nil {
		return nil, fmt.Errorf("load processed patients: %w", err)
	}

	if len(recent) < insightsMinPatients {
		return &Insights{
			Status:          TrendInsufficientData,
			Message:         fmt.Sprintf("Need at least %d processed patients for pattern analysis", insightsMinPatients),
			Recommendations: []Recommendation{},
			TotalAnalyzed:   len(recent),
		}, nil
	}

	stats := make(map[string]DepartmentStats)
	for _, p := range recent {
		dept := orDefault(p.Department, "Unknown")
		s := stats[dept]
		s.Count++
		s.TotalDuration += p.ProcessingDurationMs
		s.TotalCost += p.CostUSD
		stats[dept] = s
	}

	depts := make([]string, 0, len(stats))
	for dept, s := range stats {
		s.AvgDurationMs = float64(s.TotalDuration) / float64(s.Count)
		s.AvgCost = s.TotalCost / float64(s.Count)
		stats[dept] = s
		depts = append(depts, dept)
	}
	sort.Strings(depts)

	recs := []Recommendation{}
	for _, dept := range depts {
		if s := stats[dept]; s.AvgCost > highCostThreshold {
			recs = append(recs, Recommendation{
				Type:       "cost_optimization",
				Department: dept,
				Message:    fmt.Sprintf("%s has high avg cost ($%.4f). Consider using shorter prompts.", dept, s.AvgCost),
			})
		}
	}

	return &Insights{
		Status:          "analysis_complete",
		DepartmentStats: stats,
		Recommendations: recs,
		TotalAnalyzed:   len(recent),
	}, nil
}
