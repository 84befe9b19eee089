package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/metrics"
)

// Confidence scores by fallback source. Callers can use these to decide
// how prominently to flag degraded data.
const (
	StaleCacheConfidence = 0.7
	GeneratorConfidence  = 0.6
	StaticConfidence     = 0.5
)

// FallbackResult is a degraded value produced by a fallback source
type FallbackResult struct {
	Value      interface{} `json:"value"`
	Source     string      `json:"source"`
	Confidence float64     `json:"confidence"`
	IsStale    bool        `json:"is_stale"`
	Message    string      `json:"message"`
}

// FallbackContext carries hints for fallback resolution, such as the
// cache key the failed operation would have written.
type FallbackContext map[string]interface{}

// CacheKey derives the lookup key for cache-backed fallbacks: an
// explicit cache_key entry wins, otherwise the data type is the key.
func (fc FallbackContext) CacheKey(dataType string) string {
	if fc != nil {
		if key, ok := fc["cache_key"].(string); ok && key != "" {
			return key
		}
	}
	return dataType
}

// FallbackSource produces degraded values for a data type
type FallbackSource interface {
	Name() string
	Resolve(ctx context.Context, dataType string, fctx FallbackContext) (*FallbackResult, bool)
}

// StaleStore is the slice of the cache the stale fallback source needs.
type StaleStore interface {
	GetStale(ctx context.Context, key string) (interface{}, time.Time, bool)
}

// StaleCacheSource serves previously cached values past their TTL.
// Highest-confidence fallback: the data was real at some point.
type StaleCacheSource struct {
	store StaleStore
}

// NewStaleCacheSource creates a stale-cache fallback source
func NewStaleCacheSource(store StaleStore) *StaleCacheSource {
	return &StaleCacheSource{store: store}
}

func (s *StaleCacheSource) Name() string {
	return "stale_cache"
}

func (s *StaleCacheSource) Resolve(ctx context.Context, dataType string, fctx FallbackContext) (*FallbackResult, bool) {
	if s.store == nil {
		return nil, false
	}

	key := fctx.CacheKey(dataType)
	value, createdAt, ok := s.store.GetStale(ctx, key)
	if !ok {
		return nil, false
	}

	age := time.Since(createdAt)
	return &FallbackResult{
		Value:      value,
		Source:     s.Name(),
		Confidence: StaleCacheConfidence,
		IsStale:    true,
		Message:    fmt.Sprintf("serving cached data from %ds ago", int(age.Seconds())),
	}, true
}

// GeneratorFunc builds a minimal stand-in value for a data type
type GeneratorFunc func(ctx context.Context, fctx FallbackContext) (interface{}, error)

// GeneratorSource builds minimal placeholder responses on demand. A
// generator that errors or panics is treated as a miss so a broken
// fallback can never take down the fallback chain itself.
type GeneratorSource struct {
	mutex      sync.RWMutex
	generators map[string]GeneratorFunc
	logger     *logging.Logger
}

// NewGeneratorSource creates an empty generator source
func NewGeneratorSource() *GeneratorSource {
	return &GeneratorSource{
		generators: make(map[string]GeneratorFunc),
		logger:     logging.GetLogger(),
	}
}

// Register adds a generator for a data type
func (g *GeneratorSource) Register(dataType string, fn GeneratorFunc) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.generators[dataType] = fn
}

func (g *GeneratorSource) Name() string {
	return "generated"
}

func (g *GeneratorSource) Resolve(ctx context.Context, dataType string, fctx FallbackContext) (result *FallbackResult, ok bool) {
	g.mutex.RLock()
	fn, exists := g.generators[dataType]
	g.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Fallback generator panicked",
				"data_type", dataType,
				"panic", fmt.Sprintf("%v", r),
			)
			result = nil
			ok = false
		}
	}()

	value, err := fn(ctx, fctx)
	if err != nil {
		g.logger.Warn("Fallback generator failed",
			"data_type", dataType,
			"error", err.Error(),
		)
		return nil, false
	}

	return &FallbackResult{
		Value:      value,
		Source:     g.Name(),
		Confidence: GeneratorConfidence,
		IsStale:    false,
		Message:    "minimal generated response",
	}, true
}

// StaticSource serves pre-registered default responses. Lowest
// confidence: the data carries no user state at all.
type StaticSource struct {
	mutex     sync.RWMutex
	responses map[string]interface{}
}

// NewStaticSource creates an empty static source
func NewStaticSource() *StaticSource {
	return &StaticSource{
		responses: make(map[string]interface{}),
	}
}

// Register adds a static default for a data type
func (s *StaticSource) Register(dataType string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.responses[dataType] = value
}

func (s *StaticSource) Name() string {
	return "static"
}

func (s *StaticSource) Resolve(ctx context.Context, dataType string, fctx FallbackContext) (*FallbackResult, bool) {
	s.mutex.RLock()
	value, exists := s.responses[dataType]
	s.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	return &FallbackResult{
		Value:      value,
		Source:     s.Name(),
		Confidence: StaticConfidence,
		IsStale:    false,
		Message:    "static default response",
	}, true
}

// FallbackResolver walks an ordered source chain and returns the first
// hit. A full miss means the caller has nothing left to serve.
type FallbackResolver struct {
	sources []FallbackSource
	logger  *logging.Logger
	metrics *metrics.ResilienceMetrics
}

// NewFallbackResolver creates a resolver over the given sources, tried
// in order. The metrics bundle may be nil.
func NewFallbackResolver(m *metrics.ResilienceMetrics, sources ...FallbackSource) *FallbackResolver {
	return &FallbackResolver{
		sources: sources,
		logger:  logging.GetLogger(),
		metrics: m,
	}
}

// Resolve returns the first fallback the chain can produce.
func (fr *FallbackResolver) Resolve(ctx context.Context, dataType string, fctx FallbackContext) (*FallbackResult, bool) {
	for _, source := range fr.sources {
		result, ok := source.Resolve(ctx, dataType, fctx)
		if !ok {
			continue
		}

		fr.logger.Info("Fallback resolved",
			"data_type", dataType,
			"source", result.Source,
			"confidence", result.Confidence,
			"stale", result.IsStale,
		)
		fr.metrics.RecordFallback(dataType, result.Source)
		return result, true
	}

	fr.logger.Warn("No fallback available", "data_type", dataType)
	return nil, false
}

// NewDefaultFallbackChain wires the standard chain: stale cache, then
// generators, then static defaults. The generator and static sources
// are returned so callers can register entries.
func NewDefaultFallbackChain(store StaleStore, m *metrics.ResilienceMetrics) (*FallbackResolver, *GeneratorSource, *StaticSource) {
	generators := NewGeneratorSource()
	statics := NewStaticSource()
	resolver := NewFallbackResolver(m, NewStaleCacheSource(store), generators, statics)
	return resolver, generators, statics
}
