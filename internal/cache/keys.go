package cache

import "fmt"

// CacheKey generates cache keys with consistent prefixes
type CacheKey struct {
	Prefix string
	ID     string
}

// String returns the formatted cache key
func (ck CacheKey) String() string {
	return fmt.Sprintf("%s:%s", ck.Prefix, ck.ID)
}

// Cache key prefixes
const (
	PrefixDashboardSummary  = "dashboard_summary"
	PrefixDashboardCharts   = "dashboard_charts"
	PrefixRecentExperiments = "recent_experiments"
	PrefixExperimentList    = "experiment_list"
	PrefixExperiment        = "experiment"
	PrefixExperimentResults = "experiment_results"
)

// DashboardSummaryKeyRaw builds the key for a user's dashboard summary.
func DashboardSummaryKeyRaw(userID string) string {
	return CacheKey{Prefix: PrefixDashboardSummary, ID: userID}.String()
}

// DashboardChartsKeyRaw builds the key for a user's chart data over a period.
func DashboardChartsKeyRaw(userID, period string) string {
	return CacheKey{Prefix: PrefixDashboardCharts, ID: fmt.Sprintf("%s:%s", userID, period)}.String()
}

// RecentExperimentsKeyRaw builds the key for a user's recent-activity feed.
func RecentExperimentsKeyRaw(userID string, limit, days int) string {
	return CacheKey{Prefix: PrefixRecentExperiments, ID: fmt.Sprintf("%s:%d:%d", userID, limit, days)}.String()
}

// ExperimentListKeyRaw builds the key for one page of a user's experiment list.
func ExperimentListKeyRaw(userID string, page, pageSize int) string {
	return CacheKey{Prefix: PrefixExperimentList, ID: fmt.Sprintf("%s:%d:%d", userID, page, pageSize)}.String()
}

// ExperimentKeyRaw builds the key for a single experiment.
func ExperimentKeyRaw(experimentID string) string {
	return CacheKey{Prefix: PrefixExperiment, ID: experimentID}.String()
}

// ExperimentResultsKeyRaw builds the key for an experiment's results.
func ExperimentResultsKeyRaw(experimentID string) string {
	return CacheKey{Prefix: PrefixExperimentResults, ID: experimentID}.String()
}

// UserInvalidationPatterns returns the patterns to clear when a user's
// experiments change. Each carries a single wildcard so ClearPattern
// can match page- and period-qualified keys.
func UserInvalidationPatterns(userID string) []string {
	return []string{
		fmt.Sprintf("%s:%s*", PrefixDashboardSummary, userID),
		fmt.Sprintf("%s:%s*", PrefixDashboardCharts, userID),
		fmt.Sprintf("%s:%s*", PrefixRecentExperiments, userID),
		fmt.Sprintf("%s:%s*", PrefixExperimentList, userID),
	}
}

// ExperimentInvalidationPatterns returns the patterns to clear when a
// single experiment or its results change.
func ExperimentInvalidationPatterns(experimentID string) []string {
	return []string{
		fmt.Sprintf("%s:%s*", PrefixExperiment, experimentID),
		fmt.Sprintf("%s:%s*", PrefixExperimentResults, experimentID),
	}
}
