package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commons-chat/internal/auth"
	chat_errors "commons-chat/pkg/errors"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestUserIDRoundTrip(t *testing.T) {
	userID := uuid.New()
	ctx := auth.WithUserID(context.Background(), userID)

	got, err := auth.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestUserIDMissing(t *testing.T) {
	_, err := auth.UserID(context.Background())
	assert.ErrorIs(t, err, chat_errors.ErrUnauthorized)
}

func TestParseValidToken(t *testing.T) {
	userID := uuid.New()
	v := auth.NewTokenVerifier("secret")

	got, err := v.Parse(signToken(t, "secret", userID.String()))
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestParseRejectsBadTokens(t *testing.T) {
	v := auth.NewTokenVerifier("secret")
	userID := uuid.New()

	cases := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other-secret", userID.String())},
		{"garbage", "not.a.token"},
		{"empty", ""},
		{"non-uuid subject", signToken(t, "secret", "alice")},
		{"empty subject", signToken(t, "secret", "")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Parse(tc.token)
			assert.ErrorIs(t, err, chat_errors.ErrUnauthorized)
		})
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	v := auth.NewTokenVerifier("secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Parse(signed)
	assert.ErrorIs(t, err, chat_errors.ErrUnauthorized)
}
