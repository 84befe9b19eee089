package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
)

type staleEntry struct {
	value     interface{}
	createdAt time.Time
}

type fakeStaleStore struct {
	entries map[string]staleEntry
}

func newFakeStaleStore() *fakeStaleStore {
	return &fakeStaleStore{entries: make(map[string]staleEntry)}
}

func (f *fakeStaleStore) put(key string, value interface{}, age time.Duration) {
	f.entries[key] = staleEntry{value: value, createdAt: time.Now().Add(-age)}
}

func (f *fakeStaleStore) GetStale(ctx context.Context, key string) (interface{}, time.Time, bool) {
	entry, ok := f.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return entry.value, entry.createdAt, true
}

func TestFallbackContext_CacheKey(t *testing.T) {
	assert.Equal(t, "dashboard_summary", FallbackContext(nil).CacheKey("dashboard_summary"))
	assert.Equal(t, "dashboard_summary", FallbackContext{}.CacheKey("dashboard_summary"))
	assert.Equal(t, "dashboard_summary:u1", FallbackContext{"cache_key": "dashboard_summary:u1"}.CacheKey("dashboard_summary"))
	// Non-string hints are ignored.
	assert.Equal(t, "dashboard_summary", FallbackContext{"cache_key": 42}.CacheKey("dashboard_summary"))
}

func TestStaleCacheSource_ServesStaleEntry(t *testing.T) {
	store := newFakeStaleStore()
	store.put("dashboard_summary:u1", map[string]interface{}{"total": 3}, 30*time.Second)

	source := NewStaleCacheSource(store)
	fctx := FallbackContext{"cache_key": "dashboard_summary:u1"}

	result, ok := source.Resolve(context.Background(), "dashboard_summary", fctx)
	require.True(t, ok)
	assert.Equal(t, "stale_cache", result.Source)
	assert.Equal(t, StaleCacheConfidence, result.Confidence)
	assert.True(t, result.IsStale)
	assert.Equal(t, map[string]interface{}{"total": 3}, result.Value)
	assert.Contains(t, result.Message, "30s ago")
}

func TestStaleCacheSource_FallsBackToDataTypeKey(t *testing.T) {
	store := newFakeStaleStore()
	store.put("dashboard_summary", "cached", time.Minute)

	source := NewStaleCacheSource(store)

	result, ok := source.Resolve(context.Background(), "dashboard_summary", nil)
	require.True(t, ok)
	assert.Equal(t, "cached", result.Value)
}

func TestStaleCacheSource_MissWithoutEntry(t *testing.T) {
	source := NewStaleCacheSource(newFakeStaleStore())

	_, ok := source.Resolve(context.Background(), "dashboard_summary", nil)
	assert.False(t, ok)
}

func TestStaleCacheSource_NilStoreMisses(t *testing.T) {
	source := NewStaleCacheSource(nil)

	_, ok := source.Resolve(context.Background(), "dashboard_summary", nil)
	assert.False(t, ok)
}

func TestGeneratorSource_BuildsMinimalResponse(t *testing.T) {
	source := NewGeneratorSource()
	source.Register("dashboard_summary", func(ctx context.Context, fctx FallbackContext) (interface{}, error) {
		return map[string]interface{}{"total_experiments": 0}, nil
	})

	result, ok := source.Resolve(context.Background(), "dashboard_summary", nil)
	require.True(t, ok)
	assert.Equal(t, "generated", result.Source)
	assert.Equal(t, GeneratorConfidence, result.Confidence)
	assert.False(t, result.IsStale)
	assert.Equal(t, map[string]interface{}{"total_experiments": 0}, result.Value)
}

func TestGeneratorSource_UnknownTypeMisses(t *testing.T) {
	source := NewGeneratorSource()

	_, ok := source.Resolve(context.Background(), "dashboard_summary", nil)
	assert.False(t, ok)
}

func TestGeneratorSource_ErrorIsTreatedAsMiss(t *testing.T) {
	source := NewGeneratorSource()
	source.Register("dashboard_summary", func(ctx context.Context, fctx FallbackContext) (interface{}, error) {
		return nil, appErrors.NewInternalError("generator broke")
	})

	_, ok := source.Resolve(context.Background(), "dashboard_summary", nil)
	assert.False(t, ok)
}

func TestGeneratorSource_PanicIsTreatedAsMiss(t *testing.T) {
	source := NewGeneratorSource()
	source.Register("dashboard_summary", func(ctx context.Context, fctx FallbackContext) (interface{}, error) {
		panic("generator exploded")
	})

	var result *FallbackResult
	var ok bool
	assert.NotPanics(t, func() {
		result, ok = source.Resolve(context.Background(), "dashboard_summary", nil)
	})
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestStaticSource_ServesRegisteredDefault(t *testing.T) {
	source := NewStaticSource()
	source.Register("dashboard_charts", map[string]interface{}{"activity": []interface{}{}})

	result, ok := source.Resolve(context.Background(), "dashboard_charts", nil)
	require.True(t, ok)
	assert.Equal(t, "static", result.Source)
	assert.Equal(t, StaticConfidence, result.Confidence)
	assert.False(t, result.IsStale)
}

func TestStaticSource_UnknownTypeMisses(t *testing.T) {
	source := NewStaticSource()

	_, ok := source.Resolve(context.Background(), "dashboard_charts", nil)
	assert.False(t, ok)
}

func TestFallbackResolver_PrefersEarlierSources(t *testing.T) {
	store := newFakeStaleStore()
	store.put("dashboard_summary", "stale value", time.Minute)

	resolver, generators, statics := NewDefaultFallbackChain(store, nil)
	generators.Register("dashboard_summary", func(ctx context.Context, fctx FallbackContext) (interface{}, error) {
		return "generated value", nil
	})
	statics.Register("dashboard_summary", "static value")

	result, ok := resolver.Resolve(context.Background(), "dashboard_summary", nil)
	require.True(t, ok)
	assert.Equal(t, "stale_cache", result.Source)
	assert.Equal(t, "stale value", result.Value)
}

func TestFallbackResolver_WalksChainOnMiss(t *testing.T) {
	resolver, generators, statics := NewDefaultFallbackChain(newFakeStaleStore(), nil)
	statics.Register("dashboard_summary", "static value")

	// No stale entry and no generator: static serves.
	result, ok := resolver.Resolve(context.Background(), "dashboard_summary", nil)
	require.True(t, ok)
	assert.Equal(t, "static", result.Source)

	// With a generator registered it wins over static.
	generators.Register("dashboard_summary", func(ctx context.Context, fctx FallbackContext) (interface{}, error) {
		return "generated value", nil
	})
	result, ok = resolver.Resolve(context.Background(), "dashboard_summary", nil)
	require.True(t, ok)
	assert.Equal(t, "generated", result.Source)
}

func TestFallbackResolver_FullMiss(t *testing.T) {
	resolver, _, _ := NewDefaultFallbackChain(newFakeStaleStore(), nil)

	result, ok := resolver.Resolve(context.Background(), "dashboard_summary", nil)
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestFallbackResolver_ConfidenceOrdering(t *testing.T) {
	// The chain's confidence scores must be ordered: data that existed
	// beats data that was generated beats a bare default.
	assert.Greater(t, StaleCacheConfidence, GeneratorConfidence)
	assert.Greater(t, GeneratorConfidence, StaticConfidence)
}
