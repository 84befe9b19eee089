package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/metrics"
)

// Config holds tiered cache configuration.
type Config struct {
	Local          *LocalConfig  `json:"local"`
	BackfillTTL    time.Duration `json:"backfill_ttl"`
	StaleThreshold time.Duration `json:"stale_threshold"`
	DefaultTTL     time.Duration `json:"default_ttl"`
}

// DefaultConfig returns default tiered cache configuration
func DefaultConfig() *Config {
	return &Config{
		Local:          DefaultLocalConfig(),
		BackfillTTL:    60 * time.Second,
		StaleThreshold: 300 * time.Second,
		DefaultTTL:     300 * time.Second,
	}
}

// TieredStats combines per-tier snapshots.
type TieredStats struct {
	Local  LocalStats  `json:"local"`
	Shared SharedStats `json:"shared"`
}

// TierHealth is the outcome of a tier liveness probe.
type TierHealth struct {
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// TieredHealth is the outcome of a full cache health check.
type TieredHealth struct {
	Healthy bool       `json:"healthy"`
	Local   TierHealth `json:"local"`
	Shared  TierHealth `json:"shared"`
}

// TieredCache composes the local and shared tiers: reads go local
// first with shared backfill, writes always land in both tiers, and
// stale shadows serve degraded reads. Shared-tier failures are logged
// and treated as misses so a Redis outage never breaks a read path.
type TieredCache struct {
	local   *LocalCache
	remote  RemoteStore
	config  *Config
	logger  *logging.Logger
	metrics *metrics.CacheMetrics
}

// NewTieredCache creates the two-tier cache facade. The metrics bundle
// may be nil.
func NewTieredCache(local *LocalCache, remote RemoteStore, config *Config, logger *logging.Logger, m *metrics.CacheMetrics) *TieredCache {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &TieredCache{
		local:   local,
		remote:  remote,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

// Get returns the freshest available value for key. Local hits win; on
// a local miss the shared tier is consulted and a hit is backfilled
// into the local tier with a short TTL.
func (t *TieredCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, ok := t.local.Get(key); ok {
		if t.metrics != nil {
			t.metrics.RecordHit("local")
		}
		return value, true
	}

	value, err := t.remote.Get(ctx, key)
	if err != nil {
		if !errors.IsNotFound(err) {
			t.logger.Warn("shared cache read failed", "key", key, "error", err.Error())
		}
		if t.metrics != nil {
			t.metrics.RecordMiss()
		}
		return nil, false
	}

	// The authoritative copy stays in the shared tier; the backfill is
	// deliberately short-lived.
	t.local.Set(key, value, t.config.BackfillTTL)

	if t.metrics != nil {
		t.metrics.RecordHit("shared")
	}
	return value, true
}

// Set writes value to both tiers. The local TTL is capped by the local
// tier itself; the shared tier also receives the stale shadow copy.
func (t *TieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.config.DefaultTTL
	}

	t.local.Set(key, value, ttl)

	if t.metrics != nil {
		t.metrics.RecordSet()
	}

	if err := t.remote.Set(ctx, key, value, ttl); err != nil {
		t.logger.Warn("shared cache write failed", "key", key, "error", err.Error())
		return err
	}

	return nil
}

// GetStale returns the best degraded-read value for key: a local entry
// that is still in the map (expired or not), else the shared tier's
// stale shadow.
func (t *TieredCache) GetStale(ctx context.Context, key string) (*StaleValue, bool) {
	if value, createdAt, ok := t.local.Peek(key); ok {
		if t.metrics != nil {
			t.metrics.RecordStaleRead("local")
		}
		return &StaleValue{Value: value, CreatedAt: createdAt}, true
	}

	stale, err := t.remote.GetStale(ctx, key)
	if err != nil {
		if !errors.IsNotFound(err) {
			t.logger.Warn("stale cache read failed", "key", key, "error", err.Error())
		}
		return nil, false
	}

	if t.metrics != nil {
		t.metrics.RecordStaleRead("shared")
	}
	return stale, true
}

// Delete removes key from both tiers, best-effort.
func (t *TieredCache) Delete(ctx context.Context, key string) error {
	t.local.Delete(key)

	if err := t.remote.Delete(ctx, key); err != nil {
		t.logger.Warn("shared cache delete failed", "key", key, "error", err.Error())
		return err
	}

	return nil
}

// ClearPattern removes matching keys from both tiers, best-effort, and
// returns the number of removals. See MatchPattern for the syntax.
func (t *TieredCache) ClearPattern(ctx context.Context, pattern string) (int, error) {
	removed := t.local.DeletePattern(pattern)

	sharedRemoved, err := t.remote.DeletePattern(ctx, pattern)
	if err != nil {
		t.logger.Warn("shared cache pattern clear failed", "pattern", pattern, "error", err.Error())
		return removed, err
	}

	return removed + sharedRemoved, nil
}

// Stats returns a snapshot of both tiers. A shared-tier failure is
// reported as a disconnected tier, not an error.
func (t *TieredCache) Stats(ctx context.Context) TieredStats {
	stats := TieredStats{
		Local: t.local.Stats(),
	}

	shared, err := t.remote.Stats(ctx)
	if err != nil {
		t.logger.Warn("shared cache stats failed", "error", err.Error())
		stats.Shared = SharedStats{Connected: false}
		return stats
	}

	stats.Shared = shared
	return stats
}

// HealthCheck probes both tiers with a synthetic write+read+delete
// round trip.
func (t *TieredCache) HealthCheck(ctx context.Context) TieredHealth {
	health := TieredHealth{
		Local:  t.probeLocal(),
		Shared: t.probeShared(ctx),
	}
	health.Healthy = health.Local.Healthy && health.Shared.Healthy
	return health
}

// Stop terminates the local tier's janitor goroutine.
func (t *TieredCache) Stop() {
	t.local.Stop()
}

func (t *TieredCache) probeLocal() TierHealth {
	start := time.Now()
	key := "health_check:" + uuid.New().String()

	t.local.Set(key, "ok", time.Minute)
	_, ok := t.local.Get(key)
	t.local.Delete(key)

	health := TierHealth{
		Healthy:   ok,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if !ok {
		health.Error = "local cache probe read failed"
	}
	return health
}

func (t *TieredCache) probeShared(ctx context.Context) TierHealth {
	start := time.Now()
	key := "health_check:" + uuid.New().String()

	err := t.remote.Set(ctx, key, "ok", time.Minute)
	if err == nil {
		_, err = t.remote.Get(ctx, key)
	}
	if err == nil {
		err = t.remote.Delete(ctx, key)
	}

	health := TierHealth{
		Healthy:   err == nil,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		health.Error = err.Error()
	}
	return health
}
