package resilience

import (
	"sync"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
)

// ServiceStatus represents the availability of a resource
type ServiceStatus int

const (
	// StatusHealthy - resource is fully operational
	StatusHealthy ServiceStatus = iota
	// StatusDegraded - resource works but with reduced quality
	StatusDegraded
	// StatusMaintenance - resource is inside a maintenance window
	StatusMaintenance
	// StatusUnavailable - resource cannot serve requests
	StatusUnavailable
)

func (s ServiceStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusMaintenance:
		return "maintenance"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// DegradationLevel represents how badly a resource is degraded
type DegradationLevel int

const (
	// LevelNone - no degradation
	LevelNone DegradationLevel = iota
	// LevelMinor - slightly elevated errors or latency
	LevelMinor
	// LevelModerate - noticeable degradation
	LevelModerate
	// LevelSevere - heavy degradation
	LevelSevere
	// LevelCritical - resource is effectively down
	LevelCritical
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelMinor:
		return "minor"
	case LevelModerate:
		return "moderate"
	case LevelSevere:
		return "severe"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error-count thresholds for the degradation ladder, highest first.
var errorCountLadder = []struct {
	count int
	level DegradationLevel
}{
	{50, LevelCritical},
	{20, LevelSevere},
	{10, LevelModerate},
	{5, LevelMinor},
}

// Response-time thresholds in milliseconds, highest first.
var responseTimeLadder = []struct {
	ms    int64
	level DegradationLevel
}{
	{30000, LevelCritical},
	{10000, LevelSevere},
	{5000, LevelModerate},
	{2000, LevelMinor},
}

// ResourceHealth is the tracked health of one resource
type ResourceHealth struct {
	Resource       string           `json:"resource"`
	Status         ServiceStatus    `json:"-"`
	Level          DegradationLevel `json:"-"`
	ErrorCount     int              `json:"error_count"`
	LastError      string           `json:"last_error,omitempty"`
	LastErrorTime  time.Time        `json:"last_error_time,omitempty"`
	ResponseTimeMS int64            `json:"response_time_ms"`
	LastCheck      time.Time        `json:"last_check"`
}

// HealthMonitor tracks per-resource health and derives degradation
// levels from error streaks and response times
type HealthMonitor struct {
	mutex     sync.RWMutex
	resources map[string]*ResourceHealth
	logger    *logging.Logger
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		resources: make(map[string]*ResourceHealth),
		logger:    logging.GetLogger(),
	}
}

// UpdateHealth records an observation for a resource. The caller owns
// the error streak and passes its current value; the snapshot is
// overwritten and the degradation level rederived on every update.
func (hm *HealthMonitor) UpdateHealth(resource string, status ServiceStatus, responseTime time.Duration, errorCount int, errMsg string) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	health, exists := hm.resources[resource]
	if !exists {
		health = &ResourceHealth{Resource: resource}
		hm.resources[resource] = health
	}

	now := time.Now()
	health.LastCheck = now
	health.ResponseTimeMS = responseTime.Milliseconds()
	health.ErrorCount = errorCount

	if errMsg != "" {
		health.LastError = errMsg
		health.LastErrorTime = now
	}

	health.Level = deriveLevel(status, health.ErrorCount, health.ResponseTimeMS)
	if status == StatusHealthy && health.Level != LevelNone {
		status = StatusDegraded
	}
	health.Status = status

	hm.logger.Debug("Resource health updated",
		"resource", resource,
		"status", health.Status.String(),
		"level", health.Level.String(),
		"error_count", health.ErrorCount,
		"response_time_ms", health.ResponseTimeMS,
	)
}

// deriveLevel walks the degradation ladder: availability first, then
// the error streak, then response time.
func deriveLevel(status ServiceStatus, errorCount int, responseTimeMS int64) DegradationLevel {
	if status == StatusUnavailable {
		return LevelCritical
	}
	if status == StatusMaintenance {
		return LevelModerate
	}

	for _, rung := range errorCountLadder {
		if errorCount >= rung.count {
			return rung.level
		}
	}

	for _, rung := range responseTimeLadder {
		if responseTimeMS >= rung.ms {
			return rung.level
		}
	}

	return LevelNone
}

// GetResourceHealth returns a copy of one resource's health
func (hm *HealthMonitor) GetResourceHealth(resource string) (*ResourceHealth, bool) {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	health, exists := hm.resources[resource]
	if !exists {
		return nil, false
	}

	copied := *health
	return &copied, true
}

// GetAllResourceHealth returns copies of every tracked resource
func (hm *HealthMonitor) GetAllResourceHealth() map[string]*ResourceHealth {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	result := make(map[string]*ResourceHealth, len(hm.resources))
	for name, health := range hm.resources {
		copied := *health
		result[name] = &copied
	}
	return result
}

// IsHealthy reports whether a resource is tracked and healthy
func (hm *HealthMonitor) IsHealthy(resource string) bool {
	health, exists := hm.GetResourceHealth(resource)
	return exists && health.Status == StatusHealthy
}

// IsDegraded reports whether a tracked resource is currently degraded:
// status not healthy, or a non-zero degradation level. Untracked
// resources are not degraded.
func (hm *HealthMonitor) IsDegraded(resource string) bool {
	health, exists := hm.GetResourceHealth(resource)
	return exists && (health.Status != StatusHealthy || health.Level != LevelNone)
}

// UnhealthyResources returns the names of resources whose last
// observation was not healthy.
func (hm *HealthMonitor) UnhealthyResources() []string {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	var unhealthy []string
	for name, health := range hm.resources {
		if health.Status != StatusHealthy {
			unhealthy = append(unhealthy, name)
		}
	}
	return unhealthy
}

// Overall returns the worst status and worst degradation level across
// all tracked resources. With nothing tracked the system is healthy.
func (hm *HealthMonitor) Overall() (ServiceStatus, DegradationLevel) {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	status := StatusHealthy
	level := LevelNone

	for _, health := range hm.resources {
		if statusRank(health.Status) > statusRank(status) {
			status = health.Status
		}
		if health.Level > level {
			level = health.Level
		}
	}

	return status, level
}

// Status returns a snapshot of all resources for status endpoints.
func (hm *HealthMonitor) Status() map[string]interface{} {
	status, level := hm.Overall()

	resources := make(map[string]interface{})
	for name, health := range hm.GetAllResourceHealth() {
		resources[name] = map[string]interface{}{
			"status":           health.Status.String(),
			"level":            health.Level.String(),
			"error_count":      health.ErrorCount,
			"response_time_ms": health.ResponseTimeMS,
			"last_check":       health.LastCheck,
		}
	}

	return map[string]interface{}{
		"status":            status.String(),
		"degradation_level": level.String(),
		"resources":         resources,
	}
}

func statusRank(s ServiceStatus) int {
	switch s {
	case StatusUnavailable:
		return 3
	case StatusMaintenance:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}
