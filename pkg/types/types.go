package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Experiment represents a neuroscience experiment run by a user
type Experiment struct {
	ID             uuid.UUID              `json:"id" db:"id"`
	UserID         uuid.UUID              `json:"user_id" db:"user_id"`
	Name           string                 `json:"name" db:"name"`
	ExperimentType string                 `json:"experiment_type" db:"experiment_type"`
	Status         string                 `json:"status" db:"status"`
	Parameters     map[string]interface{} `json:"parameters"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at" db:"updated_at"`
}

// DataPoint is a single sample captured during an experiment
type DataPoint struct {
	Timestamp time.Time              `json:"timestamp"`
	Value     float64                `json:"value"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ResultMetrics summarizes the data points of one experiment run
type ResultMetrics struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ExperimentResult represents the captured output of an experiment
type ExperimentResult struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	ExperimentID    uuid.UUID     `json:"experiment_id" db:"experiment_id"`
	DataPoints      []DataPoint   `json:"data_points"`
	Metrics         ResultMetrics `json:"metrics"`
	AnalysisSummary string        `json:"analysis_summary" db:"analysis_summary"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// ExperimentWithResult pairs an experiment with its latest result
type ExperimentWithResult struct {
	Experiment
	LatestResult *ExperimentResult `json:"latest_result,omitempty"`
}

// ActivitySummary captures recent experiment activity
type ActivitySummary struct {
	LastSevenDays  int     `json:"last_7_days"`
	LastThirtyDays int     `json:"last_30_days"`
	CompletionRate float64 `json:"completion_rate"`
}

// DashboardSummary aggregates a user's experiment activity
type DashboardSummary struct {
	TotalExperiments    int                `json:"total_experiments"`
	ExperimentsByType   map[string]int     `json:"experiments_by_type"`
	ExperimentsByStatus map[string]int     `json:"experiments_by_status"`
	RecentActivity      ActivitySummary    `json:"recent_activity"`
	AverageMetrics      map[string]float64 `json:"average_metrics"`
	LastUpdated         time.Time          `json:"last_updated"`
}

// TimelineBucket is one point on the dashboard activity timeline
type TimelineBucket struct {
	Date  string `json:"date" db:"date"`
	Count int    `json:"count" db:"count"`
}

// TypeCount is one slice of the experiment type distribution
type TypeCount struct {
	ExperimentType string `json:"experiment_type" db:"experiment_type"`
	Count          int    `json:"count" db:"count"`
}

// TrendPoint is one point on a per-type performance trend
type TrendPoint struct {
	Date           string  `json:"date" db:"date"`
	ExperimentType string  `json:"experiment_type" db:"experiment_type"`
	AverageValue   float64 `json:"average_value" db:"average_value"`
}

// DashboardCharts holds chart-ready series for the dashboard
type DashboardCharts struct {
	Period            string           `json:"period"`
	ActivityTimeline  []TimelineBucket `json:"activity_timeline"`
	TypeDistribution  []TypeCount      `json:"type_distribution"`
	PerformanceTrends []TrendPoint     `json:"performance_trends"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// RecentExperiments holds the recent-activity feed for the dashboard
type RecentExperiments struct {
	Experiments []ExperimentWithResult `json:"experiments"`
	Insights    map[string]interface{} `json:"insights"`
	FetchedAt   time.Time              `json:"fetched_at"`
}

// Experiment types
const (
	ExperimentTypeHeartRate    = "heart_rate"
	ExperimentTypeReactionTime = "reaction_time"
	ExperimentTypeMemory       = "memory"
	ExperimentTypeEEG          = "eeg"
)

// Experiment statuses
const (
	ExperimentStatusPending   = "pending"
	ExperimentStatusRunning   = "running"
	ExperimentStatusCompleted = "completed"
	ExperimentStatusFailed    = "failed"
)

// ValidExperimentType reports whether t is a known experiment type.
func ValidExperimentType(t string) bool {
	switch t {
	case ExperimentTypeHeartRate, ExperimentTypeReactionTime, ExperimentTypeMemory, ExperimentTypeEEG:
		return true
	}
	return false
}

// ValidExperimentStatus reports whether s is a known experiment status.
func ValidExperimentStatus(s string) bool {
	switch s {
	case ExperimentStatusPending, ExperimentStatusRunning, ExperimentStatusCompleted, ExperimentStatusFailed:
		return true
	}
	return false
}
