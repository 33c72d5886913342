package otp

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(0, clock.now)

	require.NoError(t, store.Put(ctx, "k", "v", time.Minute))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	clock.advance(time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.Len())
}

func TestMemoryStore_TakeRemoves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0, nil)

	require.NoError(t, store.Put(ctx, "k", "v", time.Minute))
	got, err := store.Take(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = store.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_EvictsSoonestToExpire(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, nil)

	require.NoError(t, store.Put(ctx, "short", "1", time.Minute))
	require.NoError(t, store.Put(ctx, "long", "2", time.Hour))
	require.NoError(t, store.Put(ctx, "new", "3", time.Hour))

	assert.Equal(t, 2, store.Len())
	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryStore_RejectsNonPositiveTTL(t *testing.T) {
	err := NewMemoryStore(0, nil).Put(context.Background(), "k", "v", 0)
	assert.Error(t, err)
}

func TestRedisError(t *testing.T) {
	assert.NoError(t, redisError("get", nil))
	assert.ErrorIs(t, redisError("get", redis.Nil), ErrNotFound)

	boom := errors.New("connection refused")
	err := redisError("get", boom)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// TestRedisStore runs against a live server when ROOMBOOKING_TEST_REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("ROOMBOOKING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMBOOKING_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "roombooking-test:")
	require.NoError(t, store.Put(ctx, "k", "v", time.Minute))
	t.Cleanup(func() { _ = store.Delete(ctx, "k") })

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	got, err = store.Take(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
