package prompt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

type Strategy string

const (
	StrategyBestPerforming Strategy = "best_performing"
	StrategyABTest         Strategy = "ab_test"
	StrategyLatest         Strategy = "latest"
)

// minRankedUsage is the usage count a template must exceed to be ranked.
const minRankedUsage = 5

// ParseStrategy maps a request value to a strategy; empty means best_performing.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyBestPerforming:
		return StrategyBestPerforming, nil
	case StrategyABTest, StrategyLatest:
		return Strategy(s), nil
	}
	return "", models.NewValidationError(fmt.Sprintf("unknown selection strategy %q", s))
}

type TemplateLister interface {
	ListAll(ctx context.Context) ([]models.PromptTemplate, error)
}

// Selector picks the template for a run. It only reads the registry.
type Selector struct {
	templates TemplateLister
	random    func() float64
}

type SelectorOption func(*Selector)

// WithRandom replaces the source used for A/B sampling. f must return values in [0,1).
func WithRandom(f func() float64) SelectorOption {
	return func(s *Selector) { s.random = f }
}

func NewSelector(templates TemplateLister, opts ...SelectorOption) *Selector {
	s := &Selector{templates: templates, random: rand.Float64}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) Select(ctx context.Context, strategy string, overrides models.Overrides) (models.Selection, error) {
	st, err := ParseStrategy(strategy)
	if err != nil {
		return models.Selection{}, err
	}

	templates, err := s.templates.ListAll(ctx)
	if err != nil {
		return models.Selection{}, fmt.Errorf("list templates: %w", err)
	}

	var sel models.Selection
	switch st {
	case StrategyABTest:
		sel = s.abTest(templates)
	case StrategyLatest:
		sel = latest(templates)
	default:
		sel = bestPerforming(templates)
	}
	sel.Parameters = sel.Parameters.Merge(overrides)
	return sel, nil
}

func bestPerforming(templates []models.PromptTemplate) models.Selection {
	var best *models.PromptTemplate
	for i := range templates {
		t := &templates[i]
		if t.UsageCount <= minRankedUsage {
			continue
		}
		if best == nil || ranksAbove(t, best) {
			best = t
		}
	}
	if best == nil {
		return byVersion(templates, DefaultVersion)
	}
	return selectionOf(*best)
}

func ranksAbove(a, b *models.PromptTemplate) bool {
	if a.AvgRating != b.AvgRating {
		return a.AvgRating > b.AvgRating
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Version < b.Version
}

// abTest samples active templates with weight 1/(usage+1), favoring the
// less-tested ones.
func (s *Selector) abTest(templates []models.PromptTemplate) models.Selection {
	var active []models.PromptTemplate
	for _, t := range templates {
		if t.Active {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return byVersion(templates, BaselineVersion)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Version < active[j].Version })

	weights := make([]float64, len(active))
	total := 0.0
	for i, t := range active {
		weights[i] = 1 / float64(t.UsageCount+1)
		total += weights[i]
	}

	target := s.random() * total
	for i, w := range weights {
		if target < w {
			return selectionOf(active[i])
		}
		target -= w
	}
	return selectionOf(active[len(active)-1])
}

func latest(templates []models.PromptTemplate) models.Selection {
	if len(templates) == 0 {
		return DefaultSelection()
	}
	newest := templates[0]
	for _, t := range templates[1:] {
		if t.CreatedAt.After(newest.CreatedAt) ||
			(t.CreatedAt.Equal(newest.CreatedAt) && t.Version > newest.Version) {
			newest = t
		}
	}
	return selectionOf(newest)
}

// byVersion prefers the stored record and falls back to the built-in catalog.
func byVersion(templates []models.PromptTemplate, version string) models.Selection {
	for _, t := range templates {
		if t.Version == version {
			return selectionOf(t)
		}
	}
	if e, ok := CatalogEntryFor(version); ok {
		return models.Selection{Version: e.Version, Body: e.Body, Parameters: e.Parameters}
	}
	return DefaultSelection()
}

func selectionOf(t models.PromptTemplate) models.Selection {
	return models.Selection{Version: t.Version, Body: t.Body, Parameters: t.Parameters}
}
