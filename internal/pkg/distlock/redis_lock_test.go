package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "outbox-relay", 30*time.Second)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second holder cannot acquire while held
	other := NewRedisLock(client, "outbox-relay", 30*time.Second)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx))

	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ReleaseOnlyOwn(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "outbox-relay", 30*time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Releasing with a different ownership value must not free the lock
	imposter := NewRedisLock(client, "outbox-relay", 30*time.Second)
	require.NoError(t, imposter.Release(ctx))

	ok, err = imposter.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lock should still be held by the original owner")
}

func TestRedisLock_Extend(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "outbox-relay", 10*time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Extend(ctx, 60*time.Second))

	// A lock we never acquired cannot be extended
	stranger := NewRedisLock(client, "outbox-relay", 10*time.Second)
	assert.Error(t, stranger.Extend(ctx, time.Minute))
}
