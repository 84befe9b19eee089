package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// Middleware authenticates requests using Supabase access tokens.
type Middleware struct {
	supabase *SupabaseClient
	logger   *logging.Logger
}

// NewMiddleware creates authentication middleware backed by a Supabase client.
func NewMiddleware(supabase *SupabaseClient) *Middleware {
	return &Middleware{
		supabase: supabase,
		logger:   logging.GetLogger(),
	}
}

// AuthRequired rejects requests that do not carry a valid bearer token.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := m.authenticateRequest(c)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
				"error":     err.Error(),
			}).Debug("Authentication failed")
			m.unauthorized(c, err)
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("user_email", user.Email)
		c.Next()
	}
}

// OptionalAuth attaches the user to the context when a valid token is
// present and lets the request through either way.
func (m *Middleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}

		user, err := m.authenticateRequest(c)
		if err != nil {
			c.Next()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("user_email", user.Email)
		c.Next()
	}
}

func (m *Middleware) authenticateRequest(c *gin.Context) (*types.User, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, errors.NewAuthenticationError("authorization header is required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.NewAuthenticationError("authorization header must be in format 'Bearer <token>'")
	}

	claims, err := m.supabase.VerifyToken(c.Request.Context(), parts[1])
	if err != nil {
		return nil, err
	}

	return UserFromClaims(claims)
}

func (m *Middleware) unauthorized(c *gin.Context, err error) {
	message := "authentication required"
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "AUTHENTICATION_ERROR",
			"message": message,
		},
		"request_id": c.GetString("request_id"),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// GetCurrentUser returns the authenticated user stored on the context.
func GetCurrentUser(c *gin.Context) (*types.User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := value.(*types.User)
	return user, ok
}

// GetCurrentUserID returns the authenticated user's ID stored on the context.
func GetCurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}
