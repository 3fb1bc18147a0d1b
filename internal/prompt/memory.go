package prompt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

// MemoryStore keeps templates in process. Used when no database is configured
// and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	templates map[string]models.PromptTemplate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]models.PromptTemplate)}
}

func (m *MemoryStore) Get(_ context.Context, version string) (*models.PromptTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[version]
	if !ok {
		return nil, fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	return &t, nil
}

func (m *MemoryStore) List(_ context.Context) ([]models.PromptTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.PromptTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) InsertIfAbsent(_ context.Context, t models.PromptTemplate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[t.Version]; ok {
		return false, nil
	}
	m.templates[t.Version] = t
	return true, nil
}

func (m *MemoryStore) IncrementUsage(_ context.Context, version string, rating int, at time.Time) (*models.PromptTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[version]
	if !ok {
		return nil, fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	t.AvgRating = (t.AvgRating*float64(t.UsageCount) + float64(rating)) / float64(t.UsageCount+1)
	t.UsageCount++
	t.LastUsed = &at
	m.templates[version] = t
	return &t, nil
}

func (m *MemoryStore) AddCostSample(_ context.Context, version string, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[version]
	if !ok {
		return fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	t.AvgCost = (t.AvgCost*float64(t.CostSamples) + cost) / float64(t.CostSamples+1)
	t.CostSamples++
	m.templates[version] = t
	return nil
}

func (m *MemoryStore) SetActive(_ context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[version]; !ok {
		return fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	for v, t := range m.templates {
		t.Active = v == version
		m.templates[v] = t
	}
	return nil
}
