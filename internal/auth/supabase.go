package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	gotruetypes "github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/config"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// SupabaseClient wraps the Supabase project clients used for authentication.
// Sign-in and OAuth run on Supabase's hosted pages; this backend only
// verifies the access tokens the frontend sends along.
type SupabaseClient struct {
	client     *supabase.Client
	authClient gotrue.Client
	jwtSecret  string
	issuer     string
}

// NewSupabaseClient creates the Supabase clients from configuration.
func NewSupabaseClient(cfg *config.SupabaseConfig) (*SupabaseClient, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("supabase configuration is required")
	}
	if cfg.URL == "" {
		return nil, errors.NewValidationError("supabase URL is required")
	}
	if cfg.ServiceRoleKey == "" {
		return nil, errors.NewValidationError("supabase service role key is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.NewValidationError("supabase JWT secret is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{
		Headers: map[string]string{
			"X-Client-Info": "neurolab-backend@1.0.0",
		},
	})
	if err != nil {
		return nil, errors.NewExternalError("supabase", "failed to create supabase client").WithCause(err)
	}

	authClient := gotrue.New(projectRef(cfg.URL), cfg.ServiceRoleKey)

	return &SupabaseClient{
		client:     client,
		authClient: authClient,
		jwtSecret:  cfg.JWTSecret,
		issuer:     strings.TrimSuffix(cfg.URL, "/") + "/auth/v1",
	}, nil
}

// projectRef extracts the project reference from a hosted Supabase URL
// (https://abc123.supabase.co -> abc123). Self-hosted URLs yield "".
func projectRef(url string) string {
	if !strings.Contains(url, ".supabase.co") {
		return ""
	}
	parts := strings.Split(url, ".")
	if len(parts) == 0 {
		return ""
	}
	urlParts := strings.Split(parts[0], "//")
	if len(urlParts) < 2 {
		return ""
	}
	return urlParts[1]
}

// Claims are the Supabase access token claims this backend cares about.
type Claims struct {
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	Role         string                 `json:"role"`
	jwt.RegisteredClaims
}

// VerifyToken parses a Supabase access token and validates its signature,
// expiry, and issuer.
func (sc *SupabaseClient) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(sc.jwtSecret), nil
	})
	if err != nil {
		return nil, errors.NewAuthenticationError("invalid or expired token").WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewAuthenticationError("invalid token claims")
	}

	// Supabase always stamps an expiry; a token without one was not minted
	// by GoTrue.
	if claims.ExpiresAt == nil {
		return nil, errors.NewAuthenticationError("token has no expiry")
	}
	if claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, errors.NewAuthenticationError("token has expired")
	}

	if claims.Issuer != sc.issuer {
		return nil, errors.NewAuthenticationError("token issuer mismatch")
	}

	return claims, nil
}

// UserFromClaims builds the request-scoped user from verified token claims.
func UserFromClaims(claims *Claims) (*types.User, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.NewAuthenticationError("token subject is not a valid user id").WithCause(err)
	}

	name := metadataString(claims.UserMetadata, "name")
	if name == "" && claims.Email != "" {
		if at := strings.Index(claims.Email, "@"); at > 0 {
			name = claims.Email[:at]
		}
	}

	return &types.User{
		ID:        id,
		Email:     claims.Email,
		Name:      name,
		AvatarURL: metadataString(claims.UserMetadata, "avatar_url"),
	}, nil
}

// GetUserByID fetches a fresh user profile through the GoTrue admin API.
func (sc *SupabaseClient) GetUserByID(ctx context.Context, userID string) (*types.User, error) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, errors.NewValidationError("invalid user ID format").WithCause(err)
	}

	resp, err := sc.authClient.AdminGetUser(gotruetypes.AdminGetUserRequest{
		UserID: userUUID,
	})
	if err != nil {
		return nil, errors.NewExternalError("supabase", "failed to fetch user").WithCause(err)
	}

	user := resp.User

	name := metadataString(user.UserMetadata, "name")
	if name == "" && user.Email != "" {
		if at := strings.Index(user.Email, "@"); at > 0 {
			name = user.Email[:at]
		}
	}

	return &types.User{
		ID:        user.ID,
		Email:     user.Email,
		Name:      name,
		AvatarURL: metadataString(user.UserMetadata, "avatar_url"),
	}, nil
}

func metadataString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
