package processing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/vaultmind/internal/cache"
	"github.com/nikhilbhutani/vaultmind/internal/models"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "p1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "p1")
	assert.ErrorIs(t, err, models.ErrProcessingInFlight)

	other, err := l.Acquire(ctx, "p2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "p1")
	require.NoError(t, err)
	again()
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(cache.NewCache(client), ttl), mr
}

func TestRedisLocker_ExclusiveLease(t *testing.T) {
	l, mr := newRedisLocker(t, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("vaultmind:processing:p1"))

	_, err = l.Acquire(ctx, "p1")
	assert.ErrorIs(t, err, models.ErrProcessingInFlight)

	release()
	assert.False(t, mr.Exists("vaultmind:processing:p1"))

	release2, err := l.Acquire(ctx, "p1")
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_ExpiredLeaseIsNotStolenBack(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "p1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "p1")
	require.NoError(t, err)

	// Releasing the expired lease must leave the new holder's lease alone.
	stale()
	assert.True(t, mr.Exists("vaultmind:processing:p1"))

	fresh()
	assert.False(t, mr.Exists("vaultmind:processing:p1"))
}
