package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/metrics"
)

// RequestIDMiddleware attaches a request ID to the gin context and the
// request-scoped logging context, echoing it back in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}

		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))

		c.Next()
	}
}

// LoggingMiddleware emits one structured line per request.
func LoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			c.Request.URL.Path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// RecoveryMiddleware converts panics into 500 responses and records
// them in the panic counter.
func RecoveryMiddleware(logger *logging.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.LogPanic(c.Request.Context(), recovered, "request handler panicked")
				logger.WithFields(logrus.Fields{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				}).Error("Recovered from panic")

				if m != nil {
					m.RecordPanic("api")
				}

				c.Abort()
				ErrorResponseFromError(c, errors.NewInternalError("internal server error"))
			}
		}()

		c.Next()
	}
}

// CORSConfig builds the CORS layer from the configured allowed origins.
func CORSConfig(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range allowedOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowOrigins = nil
			cfg.AllowCredentials = false
			break
		}
	}

	return cors.New(cfg)
}
