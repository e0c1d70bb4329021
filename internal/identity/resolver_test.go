package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestResolveCallerSuccess(t *testing.T) {
	resolver := NewJWTResolver("s3cret")

	memberID, err := resolver.ResolveCaller(context.Background(), signToken(t, "s3cret", "member-42"))
	require.NoError(t, err)
	assert.Equal(t, "member-42", memberID)
}

func TestResolveCallerWrongSecret(t *testing.T) {
	resolver := NewJWTResolver("s3cret")

	_, err := resolver.ResolveCaller(context.Background(), signToken(t, "other", "member-42"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveCallerMissingSubject(t *testing.T) {
	resolver := NewJWTResolver("s3cret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, err := token.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = resolver.ResolveCaller(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveCallerGarbage(t *testing.T) {
	resolver := NewJWTResolver("s3cret")

	_, err := resolver.ResolveCaller(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
