package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/config"
	appErrors "github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
)

const (
	testSupabaseURL = "https://testproj.supabase.co"
	testJWTSecret   = "unit-test-jwt-secret"
	testIssuer      = testSupabaseURL + "/auth/v1"
)

func testSupabaseClient(t *testing.T) *SupabaseClient {
	t.Helper()

	sc, err := NewSupabaseClient(&config.SupabaseConfig{
		URL:            testSupabaseURL,
		AnonKey:        "anon-key",
		ServiceRoleKey: "service-role-key",
		JWTSecret:      testJWTSecret,
	})
	require.NoError(t, err)
	return sc
}

func defaultClaims(userID uuid.UUID) *Claims {
	return &Claims{
		Email: "ada@neurolab.io",
		UserMetadata: map[string]interface{}{
			"name": "Ada Lovelace",
		},
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
}

func signTestToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestNewSupabaseClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.SupabaseConfig
	}{
		{name: "nil config", cfg: nil},
		{
			name: "missing URL",
			cfg:  &config.SupabaseConfig{ServiceRoleKey: "key", JWTSecret: "secret"},
		},
		{
			name: "missing service role key",
			cfg:  &config.SupabaseConfig{URL: testSupabaseURL, JWTSecret: "secret"},
		},
		{
			name: "missing JWT secret",
			cfg:  &config.SupabaseConfig{URL: testSupabaseURL, ServiceRoleKey: "key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := NewSupabaseClient(tt.cfg)
			assert.Nil(t, sc)
			require.Error(t, err)

			appErr, ok := err.(*appErrors.AppError)
			require.True(t, ok)
			assert.Equal(t, appErrors.ErrorTypeValidation, appErr.Type)
		})
	}
}

func TestNewSupabaseClient_Issuer(t *testing.T) {
	sc := testSupabaseClient(t)
	assert.Equal(t, testIssuer, sc.issuer)

	selfHosted, err := NewSupabaseClient(&config.SupabaseConfig{
		URL:            "http://localhost:54321/",
		ServiceRoleKey: "service-role-key",
		JWTSecret:      testJWTSecret,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:54321/auth/v1", selfHosted.issuer)
}

func TestProjectRef(t *testing.T) {
	assert.Equal(t, "testproj", projectRef("https://testproj.supabase.co"))
	assert.Equal(t, "", projectRef("http://localhost:54321"))
	assert.Equal(t, "", projectRef(""))
}

func TestVerifyToken_Valid(t *testing.T) {
	sc := testSupabaseClient(t)
	userID := uuid.New()
	token := signTestToken(t, testJWTSecret, defaultClaims(userID))

	claims, err := sc.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "ada@neurolab.io", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
	assert.Equal(t, "Ada Lovelace", claims.UserMetadata["name"])
}

func TestVerifyToken_Expired(t *testing.T) {
	sc := testSupabaseClient(t)
	claims := defaultClaims(uuid.New())
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := signTestToken(t, testJWTSecret, claims)

	_, err := sc.VerifyToken(context.Background(), token)
	require.Error(t, err)

	appErr, ok := err.(*appErrors.AppError)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrorTypeAuthentication, appErr.Type)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	sc := testSupabaseClient(t)
	token := signTestToken(t, "another-secret", defaultClaims(uuid.New()))

	_, err := sc.VerifyToken(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyToken_WrongIssuer(t *testing.T) {
	sc := testSupabaseClient(t)
	claims := defaultClaims(uuid.New())
	claims.Issuer = "https://evil.example.com/auth/v1"
	token := signTestToken(t, testJWTSecret, claims)

	_, err := sc.VerifyToken(context.Background(), token)
	require.Error(t, err)

	appErr, ok := err.(*appErrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "token issuer mismatch", appErr.Message)
}

func TestVerifyToken_NoExpiry(t *testing.T) {
	sc := testSupabaseClient(t)
	claims := defaultClaims(uuid.New())
	claims.ExpiresAt = nil
	token := signTestToken(t, testJWTSecret, claims)

	_, err := sc.VerifyToken(context.Background(), token)
	require.Error(t, err)

	appErr, ok := err.(*appErrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "token has no expiry", appErr.Message)
}

func TestVerifyToken_UnsignedAlgorithm(t *testing.T) {
	sc := testSupabaseClient(t)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, defaultClaims(uuid.New()))
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = sc.VerifyToken(context.Background(), signed)
	assert.Error(t, err)
}

func TestVerifyToken_Malformed(t *testing.T) {
	sc := testSupabaseClient(t)

	_, err := sc.VerifyToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestUserFromClaims(t *testing.T) {
	userID := uuid.New()

	t.Run("name from metadata", func(t *testing.T) {
		claims := defaultClaims(userID)
		claims.UserMetadata["avatar_url"] = "https://cdn.neurolab.io/ada.png"

		user, err := UserFromClaims(claims)
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		assert.Equal(t, "ada@neurolab.io", user.Email)
		assert.Equal(t, "Ada Lovelace", user.Name)
		assert.Equal(t, "https://cdn.neurolab.io/ada.png", user.AvatarURL)
	})

	t.Run("name falls back to email prefix", func(t *testing.T) {
		claims := defaultClaims(userID)
		claims.UserMetadata = nil

		user, err := UserFromClaims(claims)
		require.NoError(t, err)
		assert.Equal(t, "ada", user.Name)
	})

	t.Run("no name and no email", func(t *testing.T) {
		claims := defaultClaims(userID)
		claims.UserMetadata = nil
		claims.Email = ""

		user, err := UserFromClaims(claims)
		require.NoError(t, err)
		assert.Equal(t, "", user.Name)
	})

	t.Run("invalid subject", func(t *testing.T) {
		claims := defaultClaims(userID)
		claims.Subject = "not-a-uuid"

		_, err := UserFromClaims(claims)
		assert.Error(t, err)
	})
}

func TestMetadataString(t *testing.T) {
	assert.Equal(t, "", metadataString(nil, "name"))
	assert.Equal(t, "", metadataString(map[string]interface{}{}, "name"))
	assert.Equal(t, "", metadataString(map[string]interface{}{"name": 42}, "name"))
	assert.Equal(t, "x", metadataString(map[string]interface{}{"name": "x"}, "name"))
}
