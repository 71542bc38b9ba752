package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores snapshots keyed by CacheKey. Get returns nil, nil on a miss.
//
// Delete also invalidates fills in flight: a Stamp taken before Delete makes
// the matching SetIfUnchanged a no-op, so a reader that loaded the store
// before a mutation cannot write the old snapshot back.
type Cache interface {
	Get(ctx context.Context, key string) (*Snapshot, error)
	Set(ctx context.Context, key string, snap *Snapshot) error
	Delete(ctx context.Context, key string) error

	// Stamp captures the invalidation state of key ahead of a store read
	Stamp(ctx context.Context, key string) (Stamp, error)
	// SetIfUnchanged stores snap unless key was deleted after stamp was taken
	SetIfUnchanged(ctx context.Context, key string, stamp Stamp, snap *Snapshot) (bool, error)
}

// Stamp is the invalidation generation observed before a cache fill. Local
// belongs to the in-process cache, Shared to the Redis cache.
type Stamp struct {
	Local  uint64
	Shared uint64
}

// CacheKey builds the cache key for a (tenant, user) pair
func CacheKey(tenantID, userID string) string {
	return fmt.Sprintf("tenantd:authz:%s:%s", tenantID, userID)
}

// MemoryCache is an in-process LRU cache with expiry. Its generation is one
// counter for the whole cache: any Delete cancels every fill in flight, which
// only costs an extra store read later.
type MemoryCache struct {
	mu    sync.Mutex
	epoch uint64
	cache *lru.LRU[string, Snapshot]
}

// NewMemoryCache creates an LRU holding at most size snapshots for ttl
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 1 {
		size = 1
	}
	return &MemoryCache{
		cache: lru.NewLRU[string, Snapshot](size, nil, ttl),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Snapshot, error) {
	snap, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	snap = snap.clone()
	return &snap, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	c.cache.Add(key, snap.clone())
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.cache.Remove(key)
	return nil
}

func (c *MemoryCache) Stamp(ctx context.Context, key string) (Stamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stamp{Local: c.epoch}, nil
}

func (c *MemoryCache) SetIfUnchanged(ctx context.Context, key string, stamp Stamp, snap *Snapshot) (bool, error) {
	if snap == nil {
		return false, fmt.Errorf("snapshot cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != stamp.Local {
		return false, nil
	}
	c.cache.Add(key, snap.clone())
	return true, nil
}

// Len returns the number of cached snapshots
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

// generationTTL outlives any store read by a wide margin
const generationTTL = 24 * time.Hour

var errStaleFill = errors.New("cache key invalidated during fill")

func generationKey(key string) string {
	return key + ":gen"
}

// RedisCache shares snapshots between instances through Redis. Each key has a
// generation counter that Delete increments.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed snapshot cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Snapshot, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	genKey := generationKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Stamp(ctx context.Context, key string) (Stamp, error) {
	gen, err := c.generation(ctx, c.client, key)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Shared: gen}, nil
}

// SetIfUnchanged watches the generation key so a Delete racing the write
// aborts the transaction.
func (c *RedisCache) SetIfUnchanged(ctx context.Context, key string, stamp Stamp, snap *Snapshot) (bool, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		gen, err := c.generation(ctx, tx, key)
		if err != nil {
			return err
		}
		if gen != stamp.Shared {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, generationKey(key))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis conditional set failed: %w", err)
	}
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *RedisCache) generation(ctx context.Context, cmd getter, key string) (uint64, error) {
	gen, err := cmd.Get(ctx, generationKey(key)).Uint64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("redis generation read failed: %w", err)
	}
	return gen, nil
}

// TieredCache reads through an in-process L1 cache in front of a shared L2
// cache. Deletes only reach the local L1, so on other instances a removed
// member can keep its cached level for up to the L1 TTL; keep that TTL short
// when several instances share the L2.
type TieredCache struct {
	l1 Cache
	l2 Cache
}

// NewTieredCache combines two caches; either may be nil
func NewTieredCache(l1, l2 Cache) *TieredCache {
	return &TieredCache{l1: l1, l2: l2}
}

func (c *TieredCache) Get(ctx context.Context, key string) (*Snapshot, error) {
	var l1Stamp Stamp
	l1Fill := false
	if c.l1 != nil {
		if snap, err := c.l1.Get(ctx, key); err == nil && snap != nil {
			return snap, nil
		}
		var err error
		l1Stamp, err = c.l1.Stamp(ctx, key)
		l1Fill = err == nil
	}
	if c.l2 == nil {
		return nil, nil
	}

	snap, err := c.l2.Get(ctx, key)
	if err != nil || snap == nil {
		return nil, err
	}
	if l1Fill {
		_, _ = c.l1.SetIfUnchanged(ctx, key, l1Stamp, snap)
	}
	return snap, nil
}

func (c *TieredCache) Set(ctx context.Context, key string, snap *Snapshot) error {
	if c.l1 != nil {
		if err := c.l1.Set(ctx, key, snap); err != nil {
			return err
		}
	}
	if c.l2 != nil {
		return c.l2.Set(ctx, key, snap)
	}
	return nil
}

// Delete invalidates L2 before L1 so a concurrent Get cannot copy the old L2
// entry into L1 after the L1 delete. L1 is cleared even when L2 fails.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	var err error
	if c.l2 != nil {
		err = c.l2.Delete(ctx, key)
	}
	if c.l1 != nil {
		if l1Err := c.l1.Delete(ctx, key); l1Err != nil && err == nil {
			err = l1Err
		}
	}
	return err
}

func (c *TieredCache) Stamp(ctx context.Context, key string) (Stamp, error) {
	var stamp Stamp
	if c.l1 != nil {
		s1, err := c.l1.Stamp(ctx, key)
		if err != nil {
			return Stamp{}, err
		}
		stamp.Local = s1.Local
	}
	if c.l2 != nil {
		s2, err := c.l2.Stamp(ctx, key)
		if err != nil {
			return Stamp{}, err
		}
		stamp.Shared = s2.Shared
	}
	return stamp, nil
}

// SetIfUnchanged writes L2 first; L1 is only filled when L2 accepted the write
func (c *TieredCache) SetIfUnchanged(ctx context.Context, key string, stamp Stamp, snap *Snapshot) (bool, error) {
	if c.l2 != nil {
		ok, err := c.l2.SetIfUnchanged(ctx, key, stamp, snap)
		if err != nil || !ok {
			return false, err
		}
	}
	if c.l1 != nil {
		return c.l1.SetIfUnchanged(ctx, key, stamp, snap)
	}
	return true, nil
}
