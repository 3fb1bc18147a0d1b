package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

// Registry is the authoritative record of template versions and how they perform.
type Registry struct {
	store Store
	now   func() time.Time
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

func (r *Registry) Get(ctx context.Context, version string) (*models.PromptTemplate, error) {
	return r.store.Get(ctx, version)
}

// ListAll returns every template, best rated first (ties by version).
func (r *Registry) ListAll(ctx context.Context) ([]models.PromptTemplate, error) {
	templates, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(templates, func(i, j int) bool {
		if templates[i].AvgRating != templates[j].AvgRating {
			return templates[i].AvgRating > templates[j].AvgRating
		}
		return templates[i].Version < templates[j].Version
	})
	return templates, nil
}

// EnsureSeeded inserts catalog entries that are not stored yet. Existing
// records keep their performance fields.
func (r *Registry) EnsureSeeded(ctx context.Context, catalog []CatalogEntry) (int, error) {
	inserted := 0
	for _, t := range Templates(catalog, r.now().UTC()) {
		ok, err := r.store.InsertIfAbsent(ctx, t)
		if err != nil {
			return inserted, fmt.Errorf("seed %s: %w", t.Version, err)
		}
		if ok {
			inserted++
			slog.Info("seeded prompt template", "version", t.Version, "active", t.Active)
		}
	}
	return inserted, nil
}

// RecordUsage folds a rating in [1,5] into the template's running mean.
func (r *Registry) RecordUsage(ctx context.Context, version string, rating int) (*models.PromptTemplate, error) {
	if rating < 1 || rating > 5 {
		return nil, models.NewValidationError(fmt.Sprintf("rating must be between 1 and 5, got %d", rating))
	}
	return r.store.IncrementUsage(ctx, version, rating, r.now().UTC())
}

func (r *Registry) RecordCost(ctx context.Context, version string, cost float64) error {
	if cost < 0 {
		return models.NewValidationError("cost must not be negative")
	}
	return r.store.AddCostSample(ctx, version, cost)
}

// Promote makes version the only active template.
func (r *Registry) Promote(ctx context.Context, version string) error {
	if err := r.store.SetActive(ctx, version); err != nil {
		return err
	}
	slog.Info("promoted prompt template", "version", version)
	return nil
}
