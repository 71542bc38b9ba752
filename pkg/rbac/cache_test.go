package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisCache creates a miniredis instance and returns a cache over it
func setupRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, ttl), mr
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	snap, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, c.Set(ctx, "a", &Snapshot{Member: true, Role: RoleOwner}))
	require.NoError(t, c.Set(ctx, "b", &Snapshot{Member: true, Role: RoleAuditor}))
	require.NoError(t, c.Set(ctx, "c", &Snapshot{}))
	assert.Equal(t, 2, c.Len())

	snap, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, snap, "oldest entry should be evicted")

	require.NoError(t, c.Delete(ctx, "b"))
	snap, err = c.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, snap)

	assert.Error(t, c.Set(ctx, "d", nil))
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, time.Minute)
	key := CacheKey("t1", "u1")

	snap, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, snap)

	want := &Snapshot{Member: true, Role: RoleManager, Grants: []PermissionLevel{LevelApprove}}
	require.NoError(t, c.Set(ctx, key, want))
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, c.Delete(ctx, key))
	assert.False(t, mr.Exists(key))

	t.Run("corrupt entry is dropped", func(t *testing.T) {
		require.NoError(t, mr.Set(key, "{not json"))
		_, err := c.Get(ctx, key)
		assert.Error(t, err)
		assert.False(t, mr.Exists(key))
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, key, want))
		mr.FastForward(2 * time.Minute)
		got, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(10, time.Minute)
	l2, mr := setupRedisCache(t, time.Minute)
	c := NewTieredCache(l1, l2)
	key := CacheKey("t1", "u1")

	require.NoError(t, l2.Set(ctx, key, &Snapshot{Member: true, Role: RoleObserver}))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, RoleObserver, got.Role)

	promoted, err := l1.Get(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, promoted, "L2 hit should populate L1")

	require.NoError(t, c.Delete(ctx, key))
	assert.False(t, mr.Exists(key))
	promoted, err = l1.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, promoted)

	// L1 is cleared even when redis rejects the invalidation
	require.NoError(t, l1.Set(ctx, key, &Snapshot{Member: true, Role: RoleObserver}))
	mr.SetError("LOADING redis is loading the dataset in memory")
	assert.Error(t, c.Delete(ctx, key))
	mr.SetError("")
	promoted, err = l1.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, promoted)
}

func TestMemoryCache_SetIfUnchanged(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	snap := &Snapshot{Member: true, Role: RoleOwner}

	stamp, err := c.Stamp(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "b"))

	ok, err := c.SetIfUnchanged(ctx, "a", stamp, snap)
	require.NoError(t, err)
	assert.False(t, ok, "a delete after the stamp cancels the fill")
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	stamp, err = c.Stamp(ctx, "a")
	require.NoError(t, err)
	ok, err = c.SetIfUnchanged(ctx, "a", stamp, snap)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, got.Role)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	grants := []PermissionLevel{LevelApprove}
	require.NoError(t, c.Set(ctx, "a", &Snapshot{Member: true, Role: RoleObserver, Grants: grants}))

	grants[0] = LevelAdmin
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []PermissionLevel{LevelApprove}, got.Grants)

	got.Grants[0] = LevelAdmin
	again, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []PermissionLevel{LevelApprove}, again.Grants)
}

func TestRedisCache_SetIfUnchanged(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, time.Minute)
	key := CacheKey("t1", "u1")
	snap := &Snapshot{Member: true, Role: RoleManager}

	stamp, err := c.Stamp(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stamp.Shared)

	require.NoError(t, c.Delete(ctx, key))
	assert.True(t, mr.Exists(generationKey(key)))
	assert.Equal(t, generationTTL, mr.TTL(generationKey(key)))

	ok, err := c.SetIfUnchanged(ctx, key, stamp, snap)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))

	stamp, err = c.Stamp(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stamp.Shared)
	ok, err = c.SetIfUnchanged(ctx, key, stamp, snap)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestTieredCache_SetIfUnchanged(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(10, time.Minute)
	l2, mr := setupRedisCache(t, time.Minute)
	c := NewTieredCache(l1, l2)
	key := CacheKey("t1", "u1")
	snap := &Snapshot{Member: true, Role: RoleAuditor}

	stamp, err := c.Stamp(ctx, key)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, key))

	ok, err := c.SetIfUnchanged(ctx, key, stamp, snap)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
	assert.Equal(t, 0, l1.Len())

	stamp, err = c.Stamp(ctx, key)
	require.NoError(t, err)
	ok, err = c.SetIfUnchanged(ctx, key, stamp, snap)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 1, l1.Len())
}
