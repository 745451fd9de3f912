package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func TestNewJWTServiceRejectsWeakSecret(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService("short", time.Hour)
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewJWTService(testSecret, 0)
	assert.Error(t, err)
}

func TestGenerateAndValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := newJWTService(testSecret, time.Hour, func() time.Time { return fixedTime })
	require.NoError(t, err)
	userID := uuid.New()

	token, err := svc.GenerateToken(context.Background(), userID, RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	_, err = svc.GenerateToken(context.Background(), userID, "root")
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := newJWTService(testSecret, time.Hour, func() time.Time { return issuedAt })
	require.NoError(t, err)
	token, err := issuer.GenerateToken(context.Background(), uuid.New(), RoleUser)
	require.NoError(t, err)

	identity, err := NewLocalIdentity(testSecret, "http://localhost/worker/tasks", "worker@local")
	require.NoError(t, err)
	identity.timeFunc = func() time.Time { return issuedAt }
	identityToken, err := identity.Token(context.Background(), "http://localhost/worker/tasks", "worker@local")
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		now     time.Time
		token   string
		wantErr error
	}{
		{"valid", testSecret, issuedAt.Add(30 * time.Minute), token, nil},
		{"within clock skew", testSecret, issuedAt.Add(time.Hour + time.Minute), token, nil},
		{"expired", testSecret, issuedAt.Add(2 * time.Hour), token, ErrExpiredToken},
		{"not yet valid", testSecret, issuedAt.Add(-10 * time.Minute), token, ErrTokenNotYetValid},
		{"wrong secret", strings.Repeat("x", 40), issuedAt, token, ErrInvalidToken},
		{"malformed", testSecret, issuedAt, "not.a.token", ErrInvalidToken},
		{"identity token", testSecret, issuedAt, identityToken, ErrInvalidToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := tc.now
			svc, err := newJWTService(tc.secret, time.Hour, func() time.Time { return now })
			require.NoError(t, err)

			_, err = svc.ValidateToken(context.Background(), tc.token)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
