package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// Dashboard cache TTLs. Charts outlive the local ceiling so chart
// entries expire locally first and keep serving from the shared tier.
const (
	SummaryTTL = 5 * time.Minute
	ChartsTTL  = 10 * time.Minute
	RecentTTL  = 3 * time.Minute
)

// DashboardCache provides typed caching for dashboard aggregates
type DashboardCache struct {
	cache *TieredCache
}

// NewDashboardCache creates a new dashboard cache
func NewDashboardCache(cache *TieredCache) *DashboardCache {
	return &DashboardCache{cache: cache}
}

// SetSummary caches a user's dashboard summary
func (dc *DashboardCache) SetSummary(ctx context.Context, userID string, summary *types.DashboardSummary) error {
	key := CacheKey{Prefix: PrefixDashboardSummary, ID: userID}
	return dc.cache.Set(ctx, key.String(), summary, SummaryTTL)
}

// GetSummary retrieves a cached dashboard summary
func (dc *DashboardCache) GetSummary(ctx context.Context, userID string) (*types.DashboardSummary, error) {
	key := CacheKey{Prefix: PrefixDashboardSummary, ID: userID}
	value, ok := dc.cache.Get(ctx, key.String())
	if !ok {
		return nil, errors.NewNotFoundError("dashboard summary")
	}
	var summary types.DashboardSummary
	if err := Coerce(value, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SetCharts caches a user's chart data for a period
func (dc *DashboardCache) SetCharts(ctx context.Context, userID, period string, charts *types.DashboardCharts) error {
	key := DashboardChartsKeyRaw(userID, period)
	return dc.cache.Set(ctx, key, charts, ChartsTTL)
}

// GetCharts retrieves cached chart data for a period
func (dc *DashboardCache) GetCharts(ctx context.Context, userID, period string) (*types.DashboardCharts, error) {
	key := DashboardChartsKeyRaw(userID, period)
	value, ok := dc.cache.Get(ctx, key)
	if !ok {
		return nil, errors.NewNotFoundError("dashboard charts")
	}
	var charts types.DashboardCharts
	if err := Coerce(value, &charts); err != nil {
		return nil, err
	}
	return &charts, nil
}

// SetRecent caches a user's recent-experiments feed
func (dc *DashboardCache) SetRecent(ctx context.Context, userID string, limit, days int, recent *types.RecentExperiments) error {
	key := RecentExperimentsKeyRaw(userID, limit, days)
	return dc.cache.Set(ctx, key, recent, RecentTTL)
}

// GetRecent retrieves a cached recent-experiments feed
func (dc *DashboardCache) GetRecent(ctx context.Context, userID string, limit, days int) (*types.RecentExperiments, error) {
	key := RecentExperimentsKeyRaw(userID, limit, days)
	value, ok := dc.cache.Get(ctx, key)
	if !ok {
		return nil, errors.NewNotFoundError("recent experiments")
	}
	var recent types.RecentExperiments
	if err := Coerce(value, &recent); err != nil {
		return nil, err
	}
	return &recent, nil
}

// InvalidateUser removes all cached dashboard data for a user. Called
// after writes so the next read rebuilds from the database.
func (dc *DashboardCache) InvalidateUser(ctx context.Context, userID string) error {
	for _, pattern := range UserInvalidationPatterns(userID) {
		if _, err := dc.cache.ClearPattern(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

// Coerce converts a cached value into a typed destination. Local-tier
// hits return the stored pointer unchanged; shared-tier hits come back
// as generic JSON maps and need a round-trip. Exported so handlers can
// coerce values cached as ad-hoc page structs.
func Coerce(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case *types.DashboardSummary:
		if d, ok := dest.(*types.DashboardSummary); ok {
			*d = *v
			return nil
		}
	case *types.DashboardCharts:
		if d, ok := dest.(*types.DashboardCharts); ok {
			*d = *v
			return nil
		}
	case *types.RecentExperiments:
		if d, ok := dest.(*types.RecentExperiments); ok {
			*d = *v
			return nil
		}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
