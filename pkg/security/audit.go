package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Authentication events
	EventTypeTokenVerified AuditEventType = "auth.token_verified"
	EventTypeTokenDenied   AuditEventType = "auth.token_denied"

	// Data access events
	EventTypeDataRead   AuditEventType = "data.read"
	EventTypeDataWrite  AuditEventType = "data.write"
	EventTypeDataDelete AuditEventType = "data.delete"
	EventTypeDataExport AuditEventType = "data.export"

	// Operational configuration events
	EventTypeMaintenanceStarted AuditEventType = "config.maintenance_started"
	EventTypeMaintenanceCleared AuditEventType = "config.maintenance_cleared"
	EventTypeCacheCleared       AuditEventType = "config.cache_cleared"

	// Security events
	EventTypeSecurityViolation  AuditEventType = "security.violation"
	EventTypeRateLimitExceeded  AuditEventType = "security.rate_limit_exceeded"
	EventTypeSuspiciousActivity AuditEventType = "security.suspicious_activity"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	UserID      string                 `json:"user_id,omitempty"`
	Email       string                 `json:"email,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	Resource    string                 `json:"resource,omitempty"`
	Action      string                 `json:"action,omitempty"`
	Result      string                 `json:"result"` // success, failure, denied, violation
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	ServiceName string                 `json:"service_name"`
	Version     string                 `json:"version"`
}

// AuditLogger writes structured audit events through the application logger.
type AuditLogger struct {
	logger        *logging.Logger
	encryptionSvc *EncryptionService
	serviceName   string
	version       string
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(serviceName, version string, encryptionSvc *EncryptionService) *AuditLogger {
	return &AuditLogger{
		logger:        logging.GetLogger(),
		encryptionSvc: encryptionSvc,
		serviceName:   serviceName,
		version:       version,
	}
}

// LogEvent logs an audit event
func (a *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		token, err := a.encryptionSvc.GenerateSecureToken(16)
		if err != nil {
			return fmt.Errorf("failed to generate event ID: %w", err)
		}
		event.ID = token
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	event.ServiceName = a.serviceName
	event.Version = a.version

	if requestID := logging.GetCorrelationID(ctx); requestID != "" {
		event.RequestID = requestID
	}

	if event.Details != nil {
		encryptedDetails, err := a.encryptionSvc.EncryptSensitiveFields(event.Details)
		if err != nil {
			a.logger.Error("Failed to encrypt audit event details",
				"error", err,
				"event_id", event.ID,
				"event_type", event.EventType,
			)
			// Continue without encryption rather than dropping the event
		} else {
			event.Details = encryptedDetails
		}
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	a.logger.Info("AUDIT_EVENT",
		"audit_event", string(eventJSON),
		"event_id", event.ID,
		"event_type", string(event.EventType),
		"user_id", event.UserID,
		"result", event.Result,
		"resource", event.Resource,
		"action", event.Action,
	)

	return nil
}

// LogAuthenticationEvent logs token verification outcomes.
func (a *AuditLogger) LogAuthenticationEvent(ctx context.Context, eventType AuditEventType, userID, email string, success bool, details map[string]interface{}) error {
	result := "success"
	if !success {
		result = "failure"
	}

	return a.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Result:    result,
		Details:   details,
	})
}

// LogDataAccessEvent logs reads, writes, deletes, and exports of
// experiment data.
func (a *AuditLogger) LogDataAccessEvent(ctx context.Context, eventType AuditEventType, userID, resource string, details map[string]interface{}) error {
	return a.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Resource:  resource,
		Result:    "success",
		Details:   details,
	})
}

// LogConfigurationEvent logs operational state changes such as maintenance
// windows and cache flushes.
func (a *AuditLogger) LogConfigurationEvent(ctx context.Context, eventType AuditEventType, userID, configKey string, oldValue, newValue interface{}) error {
	details := map[string]interface{}{
		"config_key": configKey,
		"old_value":  oldValue,
		"new_value":  newValue,
	}

	return a.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Resource:  fmt.Sprintf("config:%s", configKey),
		Action:    "modify",
		Result:    "success",
		Details:   details,
	})
}

// LogSecurityEvent logs security-related events
func (a *AuditLogger) LogSecurityEvent(ctx context.Context, eventType AuditEventType, message string, details map[string]interface{}) error {
	return a.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		Message:   message,
		Result:    "violation",
		Details:   details,
	})
}

// getClientIP extracts the real client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the chain
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
