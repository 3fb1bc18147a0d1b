package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestGetSet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	err := c.Get(ctx, "missing", &got)
	assert.True(t, errors.Is(err, redis.Nil))
}

func TestSetNXAndDeleteIfMatch(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "owner-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := c.DeleteIfMatch(ctx, "lock", "owner-2")
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists("lock"))

	released, err = c.DeleteIfMatch(ctx, "lock", "owner-1")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("lock"))
}

func TestSetNXExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = c.SetNX(ctx, "lock", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
