package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pkgredis "github.com/angelmondragon/packfinderz-cart/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockClient(t *testing.T) (*miniredis.Miniredis, *pkgredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return mr, pkgredis.NewFromClient(raw)
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	mr, client := newLockClient(t)
	ctx := context.Background()
	key := client.LockKey("cart-expiration")

	first, err := NewRedisLock(client, key, time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(client, key, time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(key))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists(key), "non-owner release must not delete the lock")

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists(key))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockKeepsForeignOwner(t *testing.T) {
	mr, client := newLockClient(t)
	ctx := context.Background()
	key := client.LockKey("cart-expiration")

	lock, err := NewRedisLock(client, key, 0)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultLockTTL, mr.TTL(key))

	require.NoError(t, mr.Set(key, "someone-else"))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockLost)
	require.NoError(t, lock.Release(ctx), "second release has nothing to do")

	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestRedisLockRejectsReentrantAcquire(t *testing.T) {
	_, client := newLockClient(t)
	ctx := context.Background()

	lock, err := NewRedisLock(client, client.LockKey("cart-expiration"), time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = lock.Acquire(ctx)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "already held")
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "key", time.Minute)
	assert.Error(t, err)

	_, client := newLockClient(t)
	_, err = NewRedisLock(client, "", time.Minute)
	assert.Error(t, err)
}
