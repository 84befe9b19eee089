package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// LocalConfig holds configuration for the in-process cache tier.
type LocalConfig struct {
	MaxSize         int           `json:"max_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	TTLCeiling      time.Duration `json:"ttl_ceiling"`
}

// DefaultLocalConfig returns default local cache configuration
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		MaxSize:         1000,
		CleanupInterval: 60 * time.Second,
		TTLCeiling:      300 * time.Second,
	}
}

// LocalStats is a snapshot of local cache counters.
type LocalStats struct {
	Entries      int   `json:"entries"`
	MaxSize      int   `json:"max_size"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	ExpiredReads int64 `json:"expired_reads"`
	Evictions    int64 `json:"evictions"`
}

// LocalCache is the in-process cache tier. A single mutex guards all
// state, including the access counters touched on reads. Each instance
// owns a janitor goroutine that sweeps expired entries and trims the
// map back to MaxSize in LRU order.
type LocalCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	config  *LocalConfig

	hits         int64
	misses       int64
	expiredReads int64
	evictions    int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLocalCache creates a local cache and starts its janitor goroutine.
// Callers must Stop() it when done.
func NewLocalCache(config *LocalConfig) *LocalCache {
	if config == nil {
		config = DefaultLocalConfig()
	}
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultLocalConfig().MaxSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultLocalConfig().CleanupInterval
	}
	if config.TTLCeiling <= 0 {
		config.TTLCeiling = DefaultLocalConfig().TTLCeiling
	}

	c := &LocalCache{
		entries: make(map[string]*Entry),
		config:  config,
		stopCh:  make(chan struct{}),
	}

	go c.janitor()

	return c
}

// Get returns the fresh value for key. Expired entries are reported as
// misses but stay in the map until the next sweep so they remain
// available for stale reads.
func (c *LocalCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if entry.IsExpired(time.Now()) {
		c.expiredReads++
		c.misses++
		return nil, false
	}

	entry.Touch()
	c.hits++
	return entry.Value, true
}

// Peek returns the value and creation time for key regardless of
// expiry. Used for degraded reads; does not count as an access.
func (c *LocalCache) Peek(key string) (interface{}, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return entry.Value, entry.CreatedAt, true
}

// Set stores value under key. TTLs outside (0, TTLCeiling] are capped
// to the ceiling; long-lived entries belong in the shared tier. When
// the cache is full an insert evicts the least recently accessed entry
// so the size bound holds between sweeps.
func (c *LocalCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 || ttl > c.config.TTLCeiling {
		ttl = c.config.TTLCeiling
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.config.MaxSize {
		c.evictLRULocked(1)
	}

	c.entries[key] = NewEntry(value, ttl)
}

// Delete removes key from the cache.
func (c *LocalCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// DeletePattern removes all keys matching pattern and returns how many
// were removed. See MatchPattern for the supported syntax.
func (c *LocalCache) DeletePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if MatchPattern(key, pattern) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *LocalCache) Stats() LocalStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return LocalStats{
		Entries:      len(c.entries),
		MaxSize:      c.config.MaxSize,
		Hits:         c.hits,
		Misses:       c.misses,
		ExpiredReads: c.expiredReads,
		Evictions:    c.evictions,
	}
}

// Sweep removes expired entries, then trims the map back to MaxSize by
// evicting the least recently accessed survivors. Returns the number
// of expired removals and LRU evictions. The janitor calls this on
// every tick; tests may call it directly.
func (c *LocalCache) Sweep() (expired, evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
			expired++
		}
	}

	if over := len(c.entries) - c.config.MaxSize; over > 0 {
		evicted = c.evictLRULocked(over)
	}

	return expired, evicted
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (c *LocalCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// evictLRULocked removes the n entries with the smallest LastAccessed.
// Caller must hold the lock.
func (c *LocalCache) evictLRULocked(n int) int {
	if n <= 0 {
		return 0
	}

	type candidate struct {
		key          string
		lastAccessed time.Time
	}

	candidates := make([]candidate, 0, len(c.entries))
	for key, entry := range c.entries {
		candidates = append(candidates, candidate{key: key, lastAccessed: entry.LastAccessed})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	for _, victim := range candidates[:n] {
		delete(c.entries, victim.key)
		c.evictions++
	}

	return n
}

func (c *LocalCache) janitor() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

// MatchPattern reports whether key matches pattern. Exactly one "*"
// wildcard is supported, matching as prefix*suffix. Patterns with zero
// or multiple wildcards only match the key literally.
func MatchPattern(key, pattern string) bool {
	if strings.Count(pattern, "*") != 1 {
		return key == pattern
	}

	idx := strings.Index(pattern, "*")
	prefix, suffix := pattern[:idx], pattern[idx+1:]

	if len(key) < len(prefix)+len(suffix) {
		return false
	}
	return strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix)
}
