package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/black-bourne/educ-backend/internal/models"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidatePreAuthToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret: "super-secret",
		Issuer: "educ",
		Clock:  now,
	})
	require.NoError(t, err)

	user := &models.User{ID: "user-123", Email: "jane@example.com", Role: models.RoleStudent}

	token, err := svc.GeneratePreAuthToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "jane@example.com", claims.Email)
	require.Equal(t, models.RoleStudent, claims.Role)
	require.False(t, claims.TwoFactorVerified)
	require.Equal(t, "educ", claims.Issuer)
	require.True(t, claims.IssuedAt.Time.Equal(current))
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(DefaultPreAuthTokenTTL)))
}

func TestGenerateSessionToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret: "super-secret",
		Clock:  now,
	})
	require.NoError(t, err)

	user := &models.User{ID: "user-456", Email: "mark@example.com", Role: models.RoleTeacher}

	token, err := svc.GenerateSessionToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	require.True(t, claims.TwoFactorVerified)
	require.Equal(t, models.RoleTeacher, claims.Role)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(DefaultSessionTokenTTL)))
}

func TestValidateTokenInvalidSignature(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{Secret: "issuer-secret", Clock: now})
	require.NoError(t, err)

	token, err := issuer.GeneratePreAuthToken(&models.User{ID: "user-123"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "other-secret", Clock: now})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid))
}

func TestValidateTokenExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:          "secret",
		PreAuthTokenTTL: time.Minute,
		Clock:           now,
	})
	require.NoError(t, err)

	token, err := svc.GeneratePreAuthToken(&models.User{ID: "user-123"})
	require.NoError(t, err)

	// Move time forward beyond expiry.
	current = current.Add(2 * time.Minute)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTokenExpired))
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "other-app", Clock: now})
	require.NoError(t, err)

	token, err := issuer.GeneratePreAuthToken(&models.User{ID: "user-123"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "educ", Clock: now})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}
