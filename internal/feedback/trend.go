package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

type TrendPoint struct {
	Date       time.Time `json:"date"`
	Accuracy   float64   `json:"accuracy"`
	Cost       float64   `json:"cost"`
	DurationMs float64   `json:"duration_ms"`
}

type ImprovementTrend struct {
	PeriodDays             int          `json:"period_days"`
	Trend                  string       `json:"trend,omitempty"`
	AccuracyImprovementPct float64      `json:"accuracy_improvement_pct"`
	CostReductionPct       float64      `json:"cost_reduction_pct"`
	SpeedImprovementPct    float64      `json:"speed_improvement_pct"`
	DataPoints             []TrendPoint `json:"data_points"`
	Summary                string       `json:"summary"`
}

// ImprovementTrend compares the first and last snapshot in the window. A
// metric whose baseline is zero reports no change.
func (a *Aggregator) ImprovementTrend(ctx context.Context, windowDays int) (*ImprovementTrend, error) {
	windowDays = normalizeWindow(windowDays)
	snaps, err := a.store.SnapshotsSince(ctx, a.windowStart(windowDays))
	if err != nil {
		return nil, fmt.Errorf("load performance snapshots: %w", err)
	}

	tr := &ImprovementTrend{PeriodDays: windowDays, DataPoints: []TrendPoint{}}
	if len(snaps) == 0 {
		tr.Trend = TrendInsufficientData
		tr.Summary = summarizeTrend(tr)
		return tr, nil
	}

	first, last := snaps[0], snaps[len(snaps)-1]
	tr.AccuracyImprovementPct = round2(pctChange(first.AvgAccuracy, last.AvgAccuracy, first.AvgAccuracy))
	tr.CostReductionPct = round2(pctChange(last.AvgCost, first.AvgCost, first.AvgCost))
	tr.SpeedImprovementPct = round2(pctChange(last.AvgDurationMs, first.AvgDurationMs, first.AvgDurationMs))

	for _, s := range snaps {
		tr.DataPoints = append(tr.DataPoints, TrendPoint{
			Date:       s.Date,
			Accuracy:   s.AvgAccuracy,
			Cost:       s.AvgCost,
			DurationMs: s.AvgDurationMs,
		})
	}
	tr.Summary = summarizeTrend(tr)
	return tr, nil
}

// pctChange is (to - from) as a percentage of base.
func pctChange(from, to, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return (to - from) / base * 100
}

func summarizeTrend(tr *ImprovementTrend) string {
	if tr.Trend == TrendInsufficientData {
		return "Not enough data to show trends yet. Process more patients to see improvements."
	}

	var improvements []string
	if tr.AccuracyImprovementPct > 5 {
		improvements = append(improvements, fmt.Sprintf("accuracy improved by %.1f%%", tr.AccuracyImprovementPct))
	}
	if tr.CostReductionPct > 5 {
		improvements = append(improvements, fmt.Sprintf("costs reduced by %.1f%%", tr.CostReductionPct))
	}
	if tr.SpeedImprovementPct > 5 {
		improvements = append(improvements, fmt.Sprintf("processing speed improved by %.1f%%", tr.SpeedImprovementPct))
	}

	prefix := fmt.Sprintf("Over the last %d days: ", tr.PeriodDays)
	if len(improvements) == 0 {
		return prefix + "performance is stable. Continue monitoring for optimization opportunities."
	}
	return prefix + strings.Join(improvements, ", ") + "."
}

// CaptureSnapshot records the window's averages so ImprovementTrend has data
// points. The prompt version is the one that processed the most patients.
func (a *Aggregator) CaptureSnapshot(ctx context.Context, windowDays int) (*models.PerformanceSnapshot, error) {
	since := a.windowStart(normalizeWindow(windowDays))

	records, err := a.store.Since(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	processed, err := a.patients.ProcessedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load processed patients: %w", err)
	}

	ratings := make([]float64, len(records))
	for i, f := range records {
		ratings[i] = float64(f.AccuracyRating)
	}
	costs := make([]float64, len(processed))
	durations := make([]float64, len(processed))
	versions := make(map[string]int)
	for i, p := range processed {
		costs[i] = p.CostUSD
		durations[i] = float64(p.ProcessingDurationMs)
		if p.PromptVersion != "" {
			versions[p.PromptVersion]++
		}
	}

	snap := &models.PerformanceSnapshot{
		ID:             uuid.NewString(),
		Date:           a.now().UTC(),
		TotalProcessed: len(processed),
		AvgAccuracy:    round2(mean(ratings)),
		AvgCost:        mean(costs),
		AvgDurationMs:  mean(durations),
		PromptVersion:  dominantVersion(versions),
	}
	if err := a.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("store performance snapshot: %w", err)
	}

	slog.Info("performance snapshot captured",
		"total_processed", snap.TotalProcessed,
		"avg_accuracy", snap.AvgAccuracy,
		"prompt_version", snap.PromptVersion,
	)
	return snap, nil
}

func dominantVersion(counts map[string]int) string {
	versions := make([]string, 0, len(counts))
	for v := range counts {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		if counts[versions[i]] != counts[versions[j]] {
			return counts[versions[i]] > counts[versions[j]]
		}
		return versions[i] < versions[j]
	})
	if len(versions) == 0 {
		return ""
	}
	return versions[0]
}

func normalizeWindow(days int) int {
	if days <= 0 {
		return 30
	}
	return days
}
