package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/infrastructure/config"
)

func newTestTokens(t *testing.T, now time.Time) *OperatorTokens {
	t.Helper()
	s, err := NewOperatorTokens(config.AuthConfig{OperatorSecret: "test-secret-key-at-least-32-chars", Issuer: "syncbridge"})
	require.NoError(t, err)
	return s.WithClock(func() time.Time { return now })
}

func TestNewOperatorTokens_RequiresSecret(t *testing.T) {
	_, err := NewOperatorTokens(config.AuthConfig{Issuer: "syncbridge"})
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestOperatorTokens_IssueAndValidate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestTokens(t, now)

	token, expiresAt, err := s.Issue("ops@example.com", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.True(t, claims.CanWrite())
	assert.NotEmpty(t, claims.ID)

	viewer, _, err := s.Issue("audit", RoleViewer, time.Hour)
	require.NoError(t, err)
	claims, err = s.Validate(viewer)
	require.NoError(t, err)
	assert.False(t, claims.CanWrite())
}

func TestOperatorTokens_Validate_Failures(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestTokens(t, now)

	t.Run("expired", func(t *testing.T) {
		token, _, err := s.Issue("ops", RoleOperator, time.Minute)
		require.NoError(t, err)
		later := newTestTokens(t, now.Add(2*time.Minute))
		_, err = later.Validate(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewOperatorTokens(config.AuthConfig{OperatorSecret: "another-secret", Issuer: "syncbridge"})
		require.NoError(t, err)
		token, _, err := other.WithClock(func() time.Time { return now }).Issue("ops", RoleOperator, time.Hour)
		require.NoError(t, err)
		_, err = s.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewOperatorTokens(config.AuthConfig{OperatorSecret: "test-secret-key-at-least-32-chars", Issuer: "elsewhere"})
		require.NoError(t, err)
		token, _, err := other.WithClock(func() time.Time { return now }).Issue("ops", RoleOperator, time.Hour)
		require.NoError(t, err)
		_, err = s.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleOperator}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, _, err := s.Issue("", RoleOperator, time.Hour)
		assert.ErrorIs(t, err, ErrMissingSubject)
	})
}
