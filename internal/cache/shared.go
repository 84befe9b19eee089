package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
)

const (
	// StaleKeyPrefix marks the extended-TTL shadow copy of an entry.
	StaleKeyPrefix = "stale:"
	// StaleTTLFactor is how much longer a stale shadow outlives its
	// primary entry.
	StaleTTLFactor = 3
)

// StaleValue is a value recovered from a stale shadow, with enough
// metadata for callers to report its age.
type StaleValue struct {
	Value     interface{} `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
}

// SharedStats is a snapshot of the shared tier.
type SharedStats struct {
	Connected  bool   `json:"connected"`
	Keys       int64  `json:"keys"`
	PoolHits   uint32 `json:"pool_hits"`
	PoolMisses uint32 `json:"pool_misses"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

// RemoteStore is the contract the tiered service needs from the shared
// tier. Implemented by SharedCache; tests substitute an in-memory fake.
type RemoteStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (interface{}, error)
	GetStale(ctx context.Context, key string) (*StaleValue, error)
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (SharedStats, error)
}

// sharedEnvelope is the wire form of a shared-tier entry. Creation
// metadata rides along so staleness can be reported after a round trip.
type sharedEnvelope struct {
	Value      interface{} `json:"value"`
	CreatedAt  time.Time   `json:"created_at"`
	TTLSeconds float64     `json:"ttl_seconds"`
}

// SharedCache is the Redis-backed cache tier. Every write also stores a
// stale shadow copy under StaleKeyPrefix with three times the TTL, so
// degraded reads can be served after the primary entry expires.
// Concurrency safety is delegated to Redis.
type SharedCache struct {
	redis *RedisClient
}

// NewSharedCache creates a shared cache over an established Redis client.
func NewSharedCache(redis *RedisClient) *SharedCache {
	return &SharedCache{redis: redis}
}

// Set stores value under key with the given TTL, plus the stale shadow
// under StaleKeyPrefix+key at StaleTTLFactor times the TTL.
func (s *SharedCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	envelope := sharedEnvelope{
		Value:      value,
		CreatedAt:  time.Now(),
		TTLSeconds: ttl.Seconds(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.NewCacheError("set", err)
	}

	if err := s.redis.Set(ctx, key, string(data), ttl); err != nil {
		return errors.NewCacheError("set", err)
	}

	if err := s.redis.Set(ctx, StaleKeyPrefix+key, string(data), ttl*StaleTTLFactor); err != nil {
		return errors.NewCacheError("set_stale_shadow", err)
	}

	return nil
}

// Get returns the fresh value for key. Expiry is enforced by the Redis
// key TTL; a missing key maps to a not-found error.
func (s *SharedCache) Get(ctx context.Context, key string) (interface{}, error) {
	data, err := s.redis.Get(ctx, key)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("cache key")
		}
		return nil, errors.NewCacheError("get", err)
	}

	var envelope sharedEnvelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, errors.NewCacheError("get", err)
	}

	return envelope.Value, nil
}

// GetStale returns the stale shadow for key, if one is still alive.
func (s *SharedCache) GetStale(ctx context.Context, key string) (*StaleValue, error) {
	data, err := s.redis.Get(ctx, StaleKeyPrefix+key)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("stale cache key")
		}
		return nil, errors.NewCacheError("get_stale", err)
	}

	var envelope sharedEnvelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, errors.NewCacheError("get_stale", err)
	}

	return &StaleValue{Value: envelope.Value, CreatedAt: envelope.CreatedAt}, nil
}

// Delete removes key and its stale shadow. Explicit invalidation means
// the value must not be served even on degraded reads.
func (s *SharedCache) Delete(ctx context.Context, key string) error {
	if _, err := s.redis.Del(ctx, key, StaleKeyPrefix+key); err != nil {
		return errors.NewCacheError("delete", err)
	}
	return nil
}

// DeletePattern removes all keys matching pattern along with their
// stale shadows, and returns the number of primary keys removed.
// Pattern syntax follows MatchPattern: with anything other than a
// single wildcard the pattern is treated as a literal key.
func (s *SharedCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if !singleWildcard(pattern) {
		removed, err := s.redis.Del(ctx, pattern)
		if err != nil {
			return 0, errors.NewCacheError("delete_pattern", err)
		}
		if _, err := s.redis.Del(ctx, StaleKeyPrefix+pattern); err != nil {
			return int(removed), errors.NewCacheError("delete_pattern", err)
		}
		return int(removed), nil
	}

	keys, err := s.redis.Keys(ctx, pattern)
	if err != nil {
		return 0, errors.NewCacheError("delete_pattern", err)
	}

	staleKeys, err := s.redis.Keys(ctx, StaleKeyPrefix+pattern)
	if err != nil {
		return 0, errors.NewCacheError("delete_pattern", err)
	}

	all := append(keys, staleKeys...)
	if len(all) == 0 {
		return 0, nil
	}

	if _, err := s.redis.Del(ctx, all...); err != nil {
		return 0, errors.NewCacheError("delete_pattern", err)
	}

	return len(keys), nil
}

// Ping reports whether the shared tier is reachable.
func (s *SharedCache) Ping(ctx context.Context) error {
	return s.redis.Health(ctx)
}

// Stats returns a snapshot of the shared tier.
func (s *SharedCache) Stats(ctx context.Context) (SharedStats, error) {
	stats := SharedStats{}

	size, err := s.redis.DBSize(ctx)
	if err != nil {
		return stats, err
	}

	pool := s.redis.Stats()
	stats.Connected = true
	stats.Keys = size
	stats.PoolHits = pool.Hits
	stats.PoolMisses = pool.Misses
	stats.TotalConns = pool.TotalConns
	stats.IdleConns = pool.IdleConns

	return stats, nil
}

func singleWildcard(pattern string) bool {
	count := 0
	for _, r := range pattern {
		if r == '*' {
			count++
		}
	}
	return count == 1
}
