package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/auth"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/cache"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/resilience"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/security"
)

// SystemHandler serves the operational surface: degradation status,
// maintenance windows and cache administration. Every mutation is
// audit-logged.
type SystemHandler struct {
	guard  *resilience.DegradationService
	cache  *cache.TieredCache
	audit  *security.AuditLogger
	logger *logging.Logger
}

// NewSystemHandler creates the system handler.
func NewSystemHandler(guard *resilience.DegradationService, tiered *cache.TieredCache, audit *security.AuditLogger) *SystemHandler {
	return &SystemHandler{
		guard:  guard,
		cache:  tiered,
		audit:  audit,
		logger: logging.GetLogger(),
	}
}

// EnableMaintenanceRequest is the POST /api/system/maintenance payload.
// An empty resource list gates every resource.
type EnableMaintenanceRequest struct {
	Message           string   `json:"message"`
	DurationMinutes   float64  `json:"duration_minutes" binding:"required,gt=0"`
	AffectedResources []string `json:"affected_resources"`
}

// ClearCacheRequest is the POST /api/system/cache/clear payload. An
// empty pattern clears nothing; "*" is rejected to keep a typo from
// flushing both tiers.
type ClearCacheRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

// Status handles GET /api/system/status.
func (h *SystemHandler) Status(c *gin.Context) {
	info := h.guard.StatusInfo()

	if resource := c.Query("resource"); resource != "" {
		available, reason := h.guard.CheckAvailability(resource)
		detail := gin.H{
			"resource":  resource,
			"available": available,
		}
		if reason != "" {
			detail["reason"] = reason
		}
		if health, tracked := h.guard.Monitor().GetResourceHealth(resource); tracked {
			detail["health"] = health
		}
		info["resource_detail"] = detail
	}

	SuccessResponse(c, info)
}

// EnableMaintenance handles POST /api/system/maintenance.
func (h *SystemHandler) EnableMaintenance(c *gin.Context) {
	var req EnableMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}

	duration := time.Duration(req.DurationMinutes * float64(time.Minute))
	h.guard.EnableMaintenance(req.Message, duration, req.AffectedResources...)

	h.auditConfig(c, security.EventTypeMaintenanceStarted, map[string]interface{}{
		"message":            req.Message,
		"duration_minutes":   req.DurationMinutes,
		"affected_resources": req.AffectedResources,
	})

	SuccessResponse(c, h.guard.Maintenance().Status())
}

// DisableMaintenance handles DELETE /api/system/maintenance.
func (h *SystemHandler) DisableMaintenance(c *gin.Context) {
	h.guard.DisableMaintenance()
	h.auditConfig(c, security.EventTypeMaintenanceCleared, nil)
	SuccessResponse(c, h.guard.Maintenance().Status())
}

// CacheStats handles GET /api/system/cache/stats.
func (h *SystemHandler) CacheStats(c *gin.Context) {
	SuccessResponse(c, gin.H{
		"stats":  h.cache.Stats(c.Request.Context()),
		"health": h.cache.HealthCheck(c.Request.Context()),
	})
}

// ClearCache handles POST /api/system/cache/clear.
func (h *SystemHandler) ClearCache(c *gin.Context) {
	var req ClearCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}
	if req.Pattern == "*" {
		BadRequestResponse(c, "refusing to clear the whole cache; use a scoped pattern")
		return
	}

	removed, err := h.cache.ClearPattern(c.Request.Context(), req.Pattern)
	if err != nil {
		h.logger.Warn("cache clear incomplete", "pattern", req.Pattern, "error", err.Error())
	}

	h.auditConfig(c, security.EventTypeCacheCleared, map[string]interface{}{
		"pattern": req.Pattern,
		"removed": removed,
	})

	SuccessResponse(c, gin.H{
		"pattern": req.Pattern,
		"removed": removed,
		// A shared-tier failure still clears the local tier.
		"complete": err == nil,
	})
}

func (h *SystemHandler) auditConfig(c *gin.Context, eventType security.AuditEventType, details map[string]interface{}) {
	if h.audit == nil {
		return
	}

	userID := ""
	if id, ok := auth.GetCurrentUserID(c); ok {
		userID = id.String()
	}
	if err := h.audit.LogConfigurationEvent(c.Request.Context(), eventType, userID, "system", nil, details); err != nil {
		h.logger.Warn("audit log write failed", "event_type", string(eventType), "error", err.Error())
	}
}
