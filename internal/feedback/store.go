package feedback

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

// Store is the append-only record of doctor ratings and periodic
// performance snapshots. Both listings are oldest first.
type Store interface {
	Append(ctx context.Context, f *models.Feedback) error
	Since(ctx context.Context, since time.Time) ([]models.Feedback, error)
	AppendSnapshot(ctx context.Context, s *models.PerformanceSnapshot) error
	SnapshotsSince(ctx context.Context, since time.Time) ([]models.PerformanceSnapshot, error)
}

type MemoryStore struct {
	mu        sync.RWMutex
	feedback  []models.Feedback
	snapshots []models.PerformanceSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, f *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, *f)
	return nil
}

func (m *MemoryStore) Since(_ context.Context, since time.Time) ([]models.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Feedback{}
	for _, f := range m.feedback {
		if f.Timestamp.After(since) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) AppendSnapshot(_ context.Context, s *models.PerformanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, *s)
	return nil
}

func (m *MemoryStore) SnapshotsSince(_ context.Context, since time.Time) ([]models.PerformanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.PerformanceSnapshot{}
	for _, s := range m.snapshots {
		if s.Date.After(since) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
