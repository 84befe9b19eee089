package security

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SecurityConfig holds all security-related configuration
type SecurityConfig struct {
	// Key for at-rest encryption and audit field sealing. When empty,
	// stored experiment payloads stay plaintext.
	EncryptionKey string

	// Identity stamped on audit events
	ServiceName string
	Version     string

	// Security headers configuration
	Headers SecurityHeadersConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig
}

// DefaultSecurityConfig returns a secure default configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		ServiceName: "neurolab-api",
		Version:     "1.0.0",
		Headers:     DefaultSecurityHeadersConfig(),
		RateLimit:   DefaultRateLimitConfig(),
	}
}

// SecurityManager wires encryption, audit logging, and rate limiting
// together for the API server.
type SecurityManager struct {
	config        SecurityConfig
	encryptionSvc *EncryptionService
	auditLogger   *AuditLogger
	rateLimiter   *RateLimiter
}

// NewSecurityManager creates a new security manager
func NewSecurityManager(config SecurityConfig, redisClient *redis.Client) (*SecurityManager, error) {
	if config.ServiceName == "" {
		config.ServiceName = "neurolab-api"
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}

	encryptionSvc := NewEncryptionService(config.EncryptionKey)
	auditLogger := NewAuditLogger(config.ServiceName, config.Version, encryptionSvc)

	config.RateLimit.RedisClient = redisClient
	rateLimiter := NewRateLimiter(config.RateLimit, auditLogger)

	sm := &SecurityManager{
		config:        config,
		encryptionSvc: encryptionSvc,
		auditLogger:   auditLogger,
		rateLimiter:   rateLimiter,
	}

	if err := sm.ValidateConfig(); err != nil {
		return nil, err
	}

	return sm, nil
}

// GetEncryptionService returns the encryption service
func (sm *SecurityManager) GetEncryptionService() *EncryptionService {
	return sm.encryptionSvc
}

// GetAuditLogger returns the audit logger
func (sm *SecurityManager) GetAuditLogger() *AuditLogger {
	return sm.auditLogger
}

// GetRateLimiter returns the rate limiter
func (sm *SecurityManager) GetRateLimiter() *RateLimiter {
	return sm.rateLimiter
}

// GetSecurityMiddleware returns the middleware stack in application order.
func (sm *SecurityManager) GetSecurityMiddleware() []gin.HandlerFunc {
	middleware := SecurityMiddleware(sm.config.Headers)
	middleware = append(middleware, sm.rateLimiter.RateLimitMiddleware())
	return middleware
}

// ValidateConfig validates the security configuration
func (sm *SecurityManager) ValidateConfig() error {
	if sm.config.EncryptionKey != "" && len(sm.config.EncryptionKey) < 32 {
		return fmt.Errorf("encryption key must be at least 32 characters")
	}

	if sm.config.RateLimit.PerIPRPS <= 0 {
		return fmt.Errorf("per-IP rate limit must be positive")
	}

	return nil
}

// GetConfig returns the security configuration
func (sm *SecurityManager) GetConfig() SecurityConfig {
	return sm.config
}
