package processing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

// Locker guards a patient against concurrent runs. Acquire returns
// models.ErrProcessingInFlight when another run holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("patient %s: %w", key, models.ErrProcessingInFlight)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// LeaseStore is the subset of cache.Cache a RedisLocker needs.
type LeaseStore interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	DeleteIfMatch(ctx context.Context, key string, value interface{}) (bool, error)
}

// RedisLocker holds a lease per patient across api and worker processes.
// The lease expires after ttl so a crashed holder cannot block a patient
// forever, and release only deletes a lease this holder still owns.
type RedisLocker struct {
	store  LeaseStore
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(store LeaseStore, ttl time.Duration) *RedisLocker {
	return &RedisLocker{store: store, ttl: ttl, prefix: "vaultmind:processing:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	leaseKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.store.SetNX(ctx, leaseKey, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire processing lease: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", key, models.ErrProcessingInFlight)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The run's context may already be done.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := l.store.DeleteIfMatch(releaseCtx, leaseKey, token); err != nil {
				logReleaseFailure(key, err)
			}
		})
	}, nil
}
