package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalCache(t *testing.T, config *LocalConfig) *LocalCache {
	cache := NewLocalCache(config)
	t.Cleanup(cache.Stop)
	return cache
}

func TestLocalCache_SetAndGet(t *testing.T) {
	cache := newTestLocalCache(t, nil)

	cache.Set("experiment:123", "value", 1*time.Minute)

	value, ok := cache.Get("experiment:123")
	assert.True(t, ok)
	assert.Equal(t, "value", value)

	_, ok = cache.Get("experiment:missing")
	assert.False(t, ok)
}

func TestLocalCache_SetOverwritesEntry(t *testing.T) {
	cache := newTestLocalCache(t, nil)

	cache.Set("key", "first", 1*time.Minute)
	cache.Set("key", "second", 1*time.Minute)

	value, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, "second", value)
	assert.Equal(t, 1, cache.Len())
}

func TestLocalCache_ExpiredEntryReadableUntilSwept(t *testing.T) {
	cache := newTestLocalCache(t, &LocalConfig{
		MaxSize:         10,
		CleanupInterval: 1 * time.Hour,
		TTLCeiling:      5 * time.Minute,
	})

	cache.Set("key", "value", 20*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	// Fresh reads miss once the TTL has passed.
	_, ok := cache.Get("key")
	assert.False(t, ok)

	// The entry stays in the map until a sweep, so degraded reads
	// still see it.
	value, createdAt, ok := cache.Peek("key")
	assert.True(t, ok)
	assert.Equal(t, "value", value)
	assert.False(t, createdAt.IsZero())

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.ExpiredReads)
	assert.Equal(t, int64(1), stats.Misses)

	expired, _ := cache.Sweep()
	assert.Equal(t, 1, expired)

	_, _, ok = cache.Peek("key")
	assert.False(t, ok)
}

func TestLocalCache_TTLCeiling(t *testing.T) {
	cache := newTestLocalCache(t, &LocalConfig{
		MaxSize:         10,
		CleanupInterval: 1 * time.Hour,
		TTLCeiling:      30 * time.Millisecond,
	})

	// Requested TTLs above the ceiling and non-positive TTLs both cap
	// to the ceiling.
	cache.Set("long", "value", 10*time.Minute)
	cache.Set("zero", "value", 0)

	time.Sleep(80 * time.Millisecond)

	_, ok := cache.Get("long")
	assert.False(t, ok)
	_, ok = cache.Get("zero")
	assert.False(t, ok)
}

func TestLocalCache_InsertAtCapacityEvictsLRU(t *testing.T) {
	cache := newTestLocalCache(t, &LocalConfig{
		MaxSize:         3,
		CleanupInterval: 1 * time.Hour,
		TTLCeiling:      5 * time.Minute,
	})

	cache.Set("a", 1, time.Minute)
	time.Sleep(5 * time.Millisecond)
	cache.Set("b", 2, time.Minute)
	time.Sleep(5 * time.Millisecond)
	cache.Set("c", 3, time.Minute)
	time.Sleep(5 * time.Millisecond)

	// Touch a and c so b is the least recently accessed.
	_, ok := cache.Get("a")
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)
	_, ok = cache.Get("c")
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)

	cache.Set("d", 4, time.Minute)

	assert.Equal(t, 3, cache.Len())
	_, ok = cache.Get("b")
	assert.False(t, ok)
	for _, key := range []string{"a", "c", "d"} {
		_, ok := cache.Get(key)
		assert.True(t, ok, "expected %s to survive eviction", key)
	}
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestLocalCache_OverwriteDoesNotEvict(t *testing.T) {
	cache := newTestLocalCache(t, &LocalConfig{
		MaxSize:         2,
		CleanupInterval: 1 * time.Hour,
		TTLCeiling:      5 * time.Minute,
	})

	cache.Set("a", 1, time.Minute)
	cache.Set("b", 2, time.Minute)

	// Updating an existing key at capacity must not push anything out.
	cache.Set("a", 10, time.Minute)

	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int64(0), cache.Stats().Evictions)
}

func TestLocalCache_SweepRemovesExpiredFirst(t *testing.T) {
	cache := newTestLocalCache(t, &LocalConfig{
		MaxSize:         10,
		CleanupInterval: 1 * time.Hour,
		TTLCeiling:      5 * time.Minute,
	})

	cache.Set("short1", 1, 20*time.Millisecond)
	cache.Set("short2", 2, 20*time.Millisecond)
	cache.Set("long", 3, 1*time.Minute)

	time.Sleep(60 * time.Millisecond)

	expired, evicted := cache.Sweep()
	assert.Equal(t, 2, expired)
	assert.Equal(t, 0, evicted)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("long")
	assert.True(t, ok)
}

func TestLocalCache_JanitorSweeps(t *testing.T) {
	cache := newTestLocalCache(t, &LocalConfig{
		MaxSize:         10,
		CleanupInterval: 20 * time.Millisecond,
		TTLCeiling:      5 * time.Minute,
	})

	cache.Set("key", "value", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return cache.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLocalCache_Delete(t *testing.T) {
	cache := newTestLocalCache(t, nil)

	cache.Set("key", "value", time.Minute)

	assert.True(t, cache.Delete("key"))
	assert.False(t, cache.Delete("key"))

	_, ok := cache.Get("key")
	assert.False(t, ok)
}

func TestLocalCache_DeletePattern(t *testing.T) {
	cache := newTestLocalCache(t, nil)

	cache.Set("dashboard_summary:user1", 1, time.Minute)
	cache.Set("dashboard_summary:user2", 2, time.Minute)
	cache.Set("experiment:user1", 3, time.Minute)

	removed := cache.DeletePattern("dashboard_summary:*")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("experiment:user1")
	assert.True(t, ok)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		pattern string
		want    bool
	}{
		{"prefix and suffix", "user_123_data", "user_*_data", true},
		{"wildcard matches empty", "user__data", "user_*_data", true},
		{"overlap rejected", "user_data", "user_*_data", false},
		{"prefix only", "dashboard_summary:u1:7d", "dashboard_summary:u1*", true},
		{"prefix mismatch", "dashboard_charts:u1", "dashboard_summary:*", false},
		{"suffix only", "anything:results", "*:results", true},
		{"no wildcard exact", "experiment:1", "experiment:1", true},
		{"no wildcard mismatch", "experiment:1", "experiment:2", false},
		{"two wildcards literal", "axbxc", "a*b*c", false},
		{"two wildcards exact", "a*b*c", "a*b*c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPattern(tt.key, tt.pattern))
		})
	}
}

func TestLocalCache_StatsCounters(t *testing.T) {
	cache := newTestLocalCache(t, nil)

	cache.Set("key", "value", time.Minute)
	cache.Get("key")
	cache.Get("key")
	cache.Get("missing")

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestLocalCache_ConcurrentAccess(t *testing.T) {
	cache := newTestLocalCache(t, &LocalConfig{
		MaxSize:         100,
		CleanupInterval: 10 * time.Millisecond,
		TTLCeiling:      5 * time.Minute,
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key:%d:%d", n, j%20)
				cache.Set(key, j, 10*time.Millisecond)
				cache.Get(key)
				cache.Peek(key)
				if j%10 == 0 {
					cache.DeletePattern(fmt.Sprintf("key:%d:*", n))
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 100)
}

func TestLocalCache_StopIsIdempotent(t *testing.T) {
	cache := NewLocalCache(nil)
	cache.Stop()
	cache.Stop()
}

func TestEntry_ExpiryAndStalenessAreIndependent(t *testing.T) {
	entry := NewEntry("value", 20*time.Millisecond)
	now := time.Now()

	assert.False(t, entry.IsExpired(now))
	assert.False(t, entry.IsStale(now, time.Hour))

	later := now.Add(50 * time.Millisecond)

	// Past its TTL but younger than the staleness threshold.
	assert.True(t, entry.IsExpired(later))
	assert.False(t, entry.IsStale(later, time.Hour))

	// Stale long before a generous TTL runs out.
	longLived := NewEntry("value", time.Hour)
	assert.True(t, longLived.IsStale(now.Add(10*time.Minute), 5*time.Minute))
	assert.False(t, longLived.IsExpired(now.Add(10*time.Minute)))
}

func TestEntry_TouchRecordsAccess(t *testing.T) {
	entry := NewEntry("value", time.Minute)
	before := entry.LastAccessed

	time.Sleep(2 * time.Millisecond)
	entry.Touch()

	assert.Equal(t, int64(1), entry.AccessCount)
	assert.True(t, entry.LastAccessed.After(before))
	// Expiry is fixed at creation; reads must not extend it.
	assert.Equal(t, entry.CreatedAt.Add(entry.TTL), entry.ExpiresAt)
}

func BenchmarkLocalCache_Set(b *testing.B) {
	cache := NewLocalCache(&LocalConfig{MaxSize: 10000, CleanupInterval: time.Hour, TTLCeiling: 5 * time.Minute})
	defer cache.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Set(fmt.Sprintf("bench:%d", i%1000), i, time.Minute)
	}
}

func BenchmarkLocalCache_Get(b *testing.B) {
	cache := NewLocalCache(&LocalConfig{MaxSize: 10000, CleanupInterval: time.Hour, TTLCeiling: 5 * time.Minute})
	defer cache.Stop()

	for i := 0; i < 1000; i++ {
		cache.Set(fmt.Sprintf("bench:%d", i), i, time.Minute)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(fmt.Sprintf("bench:%d", i%1000))
	}
}
