package security

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Global rate limits
	GlobalRPS    int
	GlobalBurst  int
	GlobalWindow time.Duration

	// Per-IP rate limits
	PerIPRPS    int
	PerIPBurst  int
	PerIPWindow time.Duration

	// Per-user rate limits (authenticated users)
	PerUserRPS    int
	PerUserBurst  int
	PerUserWindow time.Duration

	// Endpoint-specific limits
	EndpointLimits map[string]EndpointLimit

	// Abuse protection
	DDoSThreshold     int
	DDoSWindow        time.Duration
	DDoSBlockDuration time.Duration

	// IPs that bypass rate limiting
	WhitelistedIPs []string

	// Redis configuration for distributed rate limiting
	RedisClient *redis.Client
	KeyPrefix   string
}

// EndpointLimit defines rate limits for specific endpoints
type EndpointLimit struct {
	RPS    int
	Burst  int
	Window time.Duration
}

// DefaultRateLimitConfig returns rate limits tuned for the dashboard API.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalRPS:     1000,
		GlobalBurst:   2000,
		GlobalWindow:  time.Minute,
		PerIPRPS:      100,
		PerIPBurst:    200,
		PerIPWindow:   time.Minute,
		PerUserRPS:    300,
		PerUserBurst:  600,
		PerUserWindow: time.Minute,
		EndpointLimits: map[string]EndpointLimit{
			"/api/experiments": {
				RPS:    30,
				Burst:  60,
				Window: time.Minute,
			},
			"/api/experiments/*/results": {
				RPS:    60,
				Burst:  120,
				Window: time.Minute,
			},
			"/api/dashboard/export": {
				RPS:    5,
				Burst:  10,
				Window: time.Minute,
			},
		},
		DDoSThreshold:     500,
		DDoSWindow:        time.Minute,
		DDoSBlockDuration: 15 * time.Minute,
		WhitelistedIPs:    []string{"127.0.0.1", "::1"},
		KeyPrefix:         "neurolab:ratelimit:",
	}
}

// RateLimiter enforces fixed-window limits, distributed through Redis with
// an in-process fallback when Redis is unavailable.
type RateLimiter struct {
	config      RateLimitConfig
	redisClient *redis.Client
	localCache  *sync.Map
	auditLogger *AuditLogger
}

// localCounter tracks requests for one key within the current window.
type localCounter struct {
	count  int
	window time.Time
	mutex  sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig, auditLogger *AuditLogger) *RateLimiter {
	return &RateLimiter{
		config:      config,
		redisClient: config.RedisClient,
		localCache:  &sync.Map{},
		auditLogger: auditLogger,
	}
}

// RateLimitMiddleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := getClientIP(c.Request)
		userID := getUserIDFromContext(c)
		endpoint := c.Request.URL.Path

		if rl.isWhitelisted(clientIP) {
			c.Next()
			return
		}

		if rl.isDDoSAttack(c.Request.Context(), clientIP) {
			rl.auditLogger.LogSecurityEvent(c.Request.Context(), EventTypeSuspiciousActivity,
				"Request flood detected", map[string]interface{}{
					"ip_address": clientIP,
					"endpoint":   endpoint,
				})
			c.Header("Retry-After", strconv.Itoa(int(rl.config.DDoSBlockDuration.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "rate limit exceeded",
				},
				"retry_after": int(rl.config.DDoSBlockDuration.Seconds()),
			})
			return
		}

		// Check limits from most to least specific.
		limits := []struct {
			key    string
			limit  EndpointLimit
			reason string
		}{
			{
				key:    fmt.Sprintf("endpoint:%s:%s", endpoint, clientIP),
				limit:  rl.getEndpointLimit(endpoint),
				reason: "endpoint",
			},
			{
				key:    fmt.Sprintf("user:%s", userID),
				limit:  EndpointLimit{RPS: rl.config.PerUserRPS, Burst: rl.config.PerUserBurst, Window: rl.config.PerUserWindow},
				reason: "user",
			},
			{
				key:    fmt.Sprintf("ip:%s", clientIP),
				limit:  EndpointLimit{RPS: rl.config.PerIPRPS, Burst: rl.config.PerIPBurst, Window: rl.config.PerIPWindow},
				reason: "ip",
			},
			{
				key:    "global",
				limit:  EndpointLimit{RPS: rl.config.GlobalRPS, Burst: rl.config.GlobalBurst, Window: rl.config.GlobalWindow},
				reason: "global",
			},
		}

		for _, l := range limits {
			if l.limit.RPS == 0 {
				continue
			}
			if l.reason == "user" && userID == "" {
				continue
			}

			allowed, remaining, resetTime, err := rl.checkLimit(c.Request.Context(), l.key, l.limit)
			if err != nil {
				// A broken limiter should not take the API down with it.
				rl.auditLogger.LogSecurityEvent(c.Request.Context(), EventTypeSecurityViolation,
					"Rate limit check failed", map[string]interface{}{
						"error":      err.Error(),
						"ip_address": clientIP,
						"endpoint":   endpoint,
					})
				continue
			}

			c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit.RPS))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				rl.auditLogger.LogSecurityEvent(c.Request.Context(), EventTypeRateLimitExceeded,
					fmt.Sprintf("Rate limit exceeded (%s)", l.reason), map[string]interface{}{
						"ip_address": clientIP,
						"user_id":    userID,
						"endpoint":   endpoint,
						"limit_type": l.reason,
						"limit_rps":  l.limit.RPS,
					})

				retryAfter := int(time.Until(resetTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Header("Retry-After", strconv.Itoa(retryAfter))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "rate limit exceeded",
					},
					"limit_type":  l.reason,
					"retry_after": retryAfter,
				})
				return
			}
		}

		c.Next()
	}
}

// checkLimit checks if a request is within the rate limit
func (rl *RateLimiter) checkLimit(ctx context.Context, key string, limit EndpointLimit) (allowed bool, remaining int, resetTime time.Time, err error) {
	fullKey := rl.config.KeyPrefix + key
	now := time.Now()
	windowStart := now.Truncate(limit.Window)
	resetTime = windowStart.Add(limit.Window)

	if rl.redisClient != nil {
		return rl.checkLimitRedis(ctx, fullKey, limit, resetTime)
	}

	return rl.checkLimitLocal(fullKey, limit, windowStart, resetTime)
}

// checkLimitRedis checks rate limit using Redis
func (rl *RateLimiter) checkLimitRedis(ctx context.Context, key string, limit EndpointLimit, resetTime time.Time) (bool, int, time.Time, error) {
	pipe := rl.redisClient.Pipeline()

	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, resetTime)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, resetTime, fmt.Errorf("redis pipeline failed: %w", err)
	}

	count := int(incrCmd.Val())
	remaining := limit.Burst - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= limit.Burst, remaining, resetTime, nil
}

// checkLimitLocal checks rate limit using the in-process fallback.
func (rl *RateLimiter) checkLimitLocal(key string, limit EndpointLimit, windowStart, resetTime time.Time) (bool, int, time.Time, error) {
	value, _ := rl.localCache.LoadOrStore(key, &localCounter{window: windowStart})

	c := value.(*localCounter)
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.window.Before(windowStart) {
		c.count = 0
		c.window = windowStart
	}

	c.count++
	remaining := limit.Burst - c.count
	if remaining < 0 {
		remaining = 0
	}

	return c.count <= limit.Burst, remaining, resetTime, nil
}

// isDDoSAttack reports whether the client crossed the flood threshold.
// Detection needs Redis; without it only the regular limits apply.
func (rl *RateLimiter) isDDoSAttack(ctx context.Context, clientIP string) bool {
	if rl.config.DDoSThreshold == 0 || rl.redisClient == nil {
		return false
	}

	blockKey := rl.config.KeyPrefix + "ddos:blocked:" + clientIP
	blocked, err := rl.redisClient.Exists(ctx, blockKey).Result()
	if err == nil && blocked > 0 {
		return true
	}

	key := rl.config.KeyPrefix + "ddos:" + clientIP
	count, err := rl.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return false
	}

	windowStart := time.Now().Truncate(rl.config.DDoSWindow)
	rl.redisClient.ExpireAt(ctx, key, windowStart.Add(rl.config.DDoSWindow))

	if int(count) > rl.config.DDoSThreshold {
		rl.redisClient.Set(ctx, blockKey, "1", rl.config.DDoSBlockDuration)
		return true
	}

	return false
}

// isWhitelisted checks if an IP is whitelisted
func (rl *RateLimiter) isWhitelisted(ip string) bool {
	for _, whiteIP := range rl.config.WhitelistedIPs {
		if ip == whiteIP {
			return true
		}
	}
	return false
}

// getEndpointLimit returns the rate limit for a specific endpoint
func (rl *RateLimiter) getEndpointLimit(endpoint string) EndpointLimit {
	if limit, exists := rl.config.EndpointLimits[endpoint]; exists {
		return limit
	}

	for pattern, limit := range rl.config.EndpointLimits {
		if matchEndpointPattern(endpoint, pattern) {
			return limit
		}
	}

	return EndpointLimit{}
}

// matchEndpointPattern matches endpoint patterns like
// "/api/experiments/*/results".
func matchEndpointPattern(endpoint, pattern string) bool {
	if pattern == endpoint {
		return true
	}

	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, "*")
		if len(parts) == 2 {
			return strings.HasPrefix(endpoint, parts[0]) && strings.HasSuffix(endpoint, parts[1])
		}
	}

	return false
}

// getUserIDFromContext extracts the authenticated user ID from Gin context.
func getUserIDFromContext(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(uuid.UUID); ok {
			return id.String()
		}
	}
	return ""
}

// GetRateLimitStatus returns the current rate limit status for a key
func (rl *RateLimiter) GetRateLimitStatus(ctx context.Context, key string, limit EndpointLimit) (remaining int, resetTime time.Time, err error) {
	fullKey := rl.config.KeyPrefix + key
	now := time.Now()
	windowStart := now.Truncate(limit.Window)
	resetTime = windowStart.Add(limit.Window)

	if rl.redisClient != nil {
		count, err := rl.redisClient.Get(ctx, fullKey).Int()
		if err != nil && err != redis.Nil {
			return 0, resetTime, err
		}
		remaining = limit.Burst - count
	} else if value, exists := rl.localCache.Load(fullKey); exists {
		c := value.(*localCounter)
		c.mutex.Lock()
		if c.window.Before(windowStart) {
			remaining = limit.Burst
		} else {
			remaining = limit.Burst - c.count
		}
		c.mutex.Unlock()
	} else {
		remaining = limit.Burst
	}

	if remaining < 0 {
		remaining = 0
	}

	return remaining, resetTime, nil
}
