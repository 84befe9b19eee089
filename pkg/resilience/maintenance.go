package resilience

import (
	"sync"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
)

// DefaultMaintenanceMessage is used when a window is enabled without one.
const DefaultMaintenanceMessage = "Service is under maintenance"

// MaintenanceWindow gates operations during planned maintenance. The
// window carries no timer: an expired window is noticed and cleared the
// next time it is consulted.
type MaintenanceWindow struct {
	mutex     sync.Mutex
	enabled   bool
	message   string
	until     time.Time
	resources map[string]struct{}

	logger *logging.Logger
}

// NewMaintenanceWindow creates a disabled maintenance window
func NewMaintenanceWindow() *MaintenanceWindow {
	return &MaintenanceWindow{
		logger: logging.GetLogger(),
	}
}

// Enable opens a maintenance window for the given duration. A zero or
// negative duration keeps the window open until Disable is called. With
// no resources the window covers everything; otherwise only the named
// resources are gated.
func (mw *MaintenanceWindow) Enable(message string, duration time.Duration, resources ...string) {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if message == "" {
		message = DefaultMaintenanceMessage
	}

	mw.enabled = true
	mw.message = message
	if duration > 0 {
		mw.until = time.Now().Add(duration)
	} else {
		mw.until = time.Time{}
	}

	mw.resources = nil
	if len(resources) > 0 {
		mw.resources = make(map[string]struct{}, len(resources))
		for _, resource := range resources {
			mw.resources[resource] = struct{}{}
		}
	}

	mw.logger.Warn("Maintenance window enabled",
		"message", message,
		"duration", duration.String(),
		"resources", resources,
	)
}

// Disable closes the maintenance window
func (mw *MaintenanceWindow) Disable() {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if !mw.enabled {
		return
	}

	mw.enabled = false
	mw.message = ""
	mw.until = time.Time{}
	mw.resources = nil

	mw.logger.Info("Maintenance window disabled")
}

// IsEnabled reports whether the window is currently active at all,
// clearing it first if its deadline has passed.
func (mw *MaintenanceWindow) IsEnabled() bool {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	return mw.isEnabledLocked(time.Now())
}

// IsEnabledFor reports whether the active window covers resource. A
// window with no resource set covers everything.
func (mw *MaintenanceWindow) IsEnabledFor(resource string) bool {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if !mw.isEnabledLocked(time.Now()) {
		return false
	}
	if len(mw.resources) == 0 {
		return true
	}
	_, covered := mw.resources[resource]
	return covered
}

// AffectedResources returns the scoped resource names, nil when the
// window covers everything or is disabled.
func (mw *MaintenanceWindow) AffectedResources() []string {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if !mw.isEnabledLocked(time.Now()) || len(mw.resources) == 0 {
		return nil
	}
	resources := make([]string, 0, len(mw.resources))
	for resource := range mw.resources {
		resources = append(resources, resource)
	}
	return resources
}

// Message returns the active maintenance message, if any.
func (mw *MaintenanceWindow) Message() string {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if !mw.isEnabledLocked(time.Now()) {
		return ""
	}
	return mw.message
}

// Remaining returns how long the active window has left. Zero means the
// window is disabled or has no deadline.
func (mw *MaintenanceWindow) Remaining() time.Duration {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	now := time.Now()
	if !mw.isEnabledLocked(now) || mw.until.IsZero() {
		return 0
	}
	return mw.until.Sub(now)
}

// Status returns a snapshot of the window for status endpoints.
func (mw *MaintenanceWindow) Status() map[string]interface{} {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	now := time.Now()
	status := map[string]interface{}{
		"enabled": mw.isEnabledLocked(now),
	}
	if mw.enabled {
		status["message"] = mw.message
		if !mw.until.IsZero() {
			status["until"] = mw.until
			status["remaining_seconds"] = int64(mw.until.Sub(now).Seconds())
		}
		if len(mw.resources) > 0 {
			resources := make([]string, 0, len(mw.resources))
			for resource := range mw.resources {
				resources = append(resources, resource)
			}
			status["affected_resources"] = resources
		}
	}
	return status
}

// isEnabledLocked applies lazy expiry. Caller must hold the lock.
func (mw *MaintenanceWindow) isEnabledLocked(now time.Time) bool {
	if !mw.enabled {
		return false
	}
	if !mw.until.IsZero() && now.After(mw.until) {
		mw.enabled = false
		mw.message = ""
		mw.until = time.Time{}
		mw.resources = nil
		mw.logger.Info("Maintenance window expired")
		return false
	}
	return true
}
