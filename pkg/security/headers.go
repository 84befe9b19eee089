package security

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// Content Security Policy
	CSPDirectives map[string][]string

	// HSTS configuration
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	// CORS configuration
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration

	// Permissions Policy
	PermissionsPolicy map[string][]string

	// Additional security headers
	ReferrerPolicy        string
	XFrameOptions         string
	XContentTypeOptions   bool
	XDNSPrefetchControl   bool
	XDownloadOptions      bool
	XPermittedCrossDomain string
}

// DefaultSecurityHeadersConfig returns a secure default configuration
// for the dashboard API.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		CSPDirectives: map[string][]string{
			"default-src": {"'self'"},
			"script-src":  {"'self'"},
			"style-src":   {"'self'", "https://fonts.googleapis.com"},
			"font-src":    {"'self'", "https://fonts.gstatic.com"},
			"img-src":     {"'self'", "data:", "https:"},
			"connect-src": {"'self'", "wss:", "https:"},
			"media-src":   {"'none'"},
			"object-src":  {"'none'"},
			"frame-src":   {"'none'"},
			"base-uri":    {"'self'"},
			"form-action": {"'self'"},
		},
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		HSTSPreload:           true,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"https://*.neurolab360.com",
		},
		AllowedMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS",
		},
		AllowedHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Requested-With", "X-Request-ID", "X-Correlation-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID", "X-Correlation-ID", "X-RateLimit-Remaining", "Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		PermissionsPolicy: map[string][]string{
			"camera":      {"'none'"},
			"microphone":  {"'none'"},
			"geolocation": {"'none'"},
			"payment":     {"'none'"},
			"usb":         {"'none'"},
			"fullscreen":  {"'self'"},
		},
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XFrameOptions:         "DENY",
		XContentTypeOptions:   true,
		XDNSPrefetchControl:   false,
		XDownloadOptions:      true,
		XPermittedCrossDomain: "none",
	}
}

// SecurityHeadersMiddleware returns a Gin middleware that sets security
// headers. Static header values are computed once.
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	csp := buildCSP(config.CSPDirectives)
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = buildHSTS(config.HSTSMaxAge, config.HSTSIncludeSubdomains, config.HSTSPreload)
	}
	permissions := buildPermissionsPolicy(config.PermissionsPolicy)

	dnsPrefetch := "off"
	if config.XDNSPrefetchControl {
		dnsPrefetch = "on"
	}

	return func(c *gin.Context) {
		if csp != "" {
			c.Header("Content-Security-Policy", csp)
		}
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		if permissions != "" {
			c.Header("Permissions-Policy", permissions)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.XFrameOptions != "" {
			c.Header("X-Frame-Options", config.XFrameOptions)
		}
		if config.XContentTypeOptions {
			c.Header("X-Content-Type-Options", "nosniff")
		}
		c.Header("X-DNS-Prefetch-Control", dnsPrefetch)
		if config.XDownloadOptions {
			c.Header("X-Download-Options", "noopen")
		}
		if config.XPermittedCrossDomain != "" {
			c.Header("X-Permitted-Cross-Domain-Policies", config.XPermittedCrossDomain)
		}

		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("X-Robots-Tag", "noindex, nofollow, nosnippet, noarchive")
		c.Header("Server", "NeuroLab-360")

		c.Next()
	}
}

// CORSMiddleware returns a CORS middleware with the given configuration
func CORSMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     config.AllowedMethods,
		AllowHeaders:     config.AllowedHeaders,
		ExposeHeaders:    config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	}

	// gin-contrib/cors rejects wildcard patterns in AllowOrigins, so
	// subdomain wildcards run through a custom matcher instead.
	if containsWildcard(config.AllowedOrigins) {
		corsConfig.AllowOriginFunc = func(origin string) bool {
			return isOriginAllowed(origin, config.AllowedOrigins)
		}
		corsConfig.AllowOrigins = nil
	}

	return cors.New(corsConfig)
}

// buildCSP constructs a Content Security Policy header value with
// directives in deterministic order.
func buildCSP(directives map[string][]string) string {
	keys := make([]string, 0, len(directives))
	for directive := range directives {
		keys = append(keys, directive)
	}
	sort.Strings(keys)

	var parts []string
	for _, directive := range keys {
		if sources := directives[directive]; len(sources) > 0 {
			parts = append(parts, directive+" "+strings.Join(sources, " "))
		}
	}
	return strings.Join(parts, "; ")
}

// buildHSTS constructs an HSTS header value
func buildHSTS(maxAge int, includeSubdomains, preload bool) string {
	hsts := fmt.Sprintf("max-age=%d", maxAge)
	if includeSubdomains {
		hsts += "; includeSubDomains"
	}
	if preload {
		hsts += "; preload"
	}
	return hsts
}

// buildPermissionsPolicy constructs a Permissions Policy header value with
// features in deterministic order.
func buildPermissionsPolicy(policies map[string][]string) string {
	keys := make([]string, 0, len(policies))
	for feature := range policies {
		keys = append(keys, feature)
	}
	sort.Strings(keys)

	var parts []string
	for _, feature := range keys {
		if allowlist := policies[feature]; len(allowlist) > 0 {
			parts = append(parts, feature+"=("+strings.Join(allowlist, " ")+")")
		}
	}
	return strings.Join(parts, ", ")
}

// containsWildcard checks if any origin contains a wildcard
func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if strings.Contains(origin, "*") {
			return true
		}
	}
	return false
}

// isOriginAllowed checks if an origin is allowed based on patterns
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if matchOrigin(origin, allowed) {
			return true
		}
	}
	return false
}

// matchOrigin checks if an origin matches a pattern (supports subdomain
// wildcards like https://*.example.com).
func matchOrigin(origin, pattern string) bool {
	if pattern == "*" {
		return true
	}

	if !strings.Contains(pattern, "*") {
		return origin == pattern
	}

	if strings.HasPrefix(pattern, "https://*.") {
		domain := strings.TrimPrefix(pattern, "https://*.")
		return strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain
	}

	if strings.HasPrefix(pattern, "http://*.") {
		domain := strings.TrimPrefix(pattern, "http://*.")
		return strings.HasSuffix(origin, "."+domain) || origin == "http://"+domain
	}

	return false
}

// SecurityMiddleware combines the security middlewares in the order the
// router should apply them.
func SecurityMiddleware(config SecurityHeadersConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		CORSMiddleware(config),
		SecurityHeadersMiddleware(config),
		RequestSizeMiddleware(10 << 20), // 10MB limit
	}
}

// RequestSizeMiddleware limits the size of request bodies
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "REQUEST_TOO_LARGE",
					"message": "request body too large",
				},
				"max_size": maxSize,
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
