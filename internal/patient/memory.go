package patient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	patients map[string]models.Patient
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patients: make(map[string]models.Patient)}
}

func (m *MemoryStore) Create(_ context.Context, p *models.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patients[p.ID]; ok {
		return fmt.Errorf("insert patient %s: duplicate id", p.ID)
	}
	m.patients[p.ID] = clonePatient(*p)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	p = clonePatient(p)
	return &p, nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]models.Patient, error) {
	all := m.sorted(func(a, b models.Patient) bool { return a.CreatedAt.After(b.CreatedAt) }, nil)
	if offset >= len(all) {
		return []models.Patient{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patients), nil
}

func (m *MemoryStore) SaveOutcome(_ context.Context, id string, o models.Outcome, at time.Time) (*models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	p.ApplyOutcome(o, at)
	m.patients[id] = p
	out := clonePatient(p)
	return &out, nil
}

func (m *MemoryStore) ListProcessed(_ context.Context, limit int) ([]models.Patient, error) {
	out := m.sorted(func(a, b models.Patient) bool { return a.ProcessedAt.After(*b.ProcessedAt) },
		func(p models.Patient) bool { return p.Processed })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ProcessedSince(_ context.Context, since time.Time) ([]models.Patient, error) {
	return m.sorted(func(a, b models.Patient) bool { return a.ProcessedAt.Before(*b.ProcessedAt) },
		func(p models.Patient) bool { return p.Processed && !p.ProcessedAt.Before(since) }), nil
}

func (m *MemoryStore) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.patients))
	m.patients = make(map[string]models.Patient)
	return n, nil
}

func (m *MemoryStore) sorted(less func(a, b models.Patient) bool, keep func(models.Patient) bool) []models.Patient {
	m.mu.RLock()
	out := make([]models.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		if keep == nil || keep(p) {
			out = append(out, clonePatient(p))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clonePatient(p models.Patient) models.Patient {
	if p.LabResults != nil {
		p.LabResults = append([]models.LabResult(nil), p.LabResults...)
	}
	if p.TokensUsed != nil {
		t := *p.TokensUsed
		p.TokensUsed = &t
	}
	if p.ProcessedAt != nil {
		at := *p.ProcessedAt
		p.ProcessedAt = &at
	}
	return p
}
