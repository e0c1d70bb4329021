// Package identity resolves bearer credentials issued by the external identity
// provider into opaque member ids. Token issuance is out of scope; this service
// only verifies.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Resolver maps a bearer credential to a member id.
type Resolver interface {
	ResolveCaller(ctx context.Context, token string) (string, error)
}

// JWTResolver verifies HMAC-signed tokens from the identity provider and
// extracts the member id from the subject claim.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver constructs a resolver with the shared signing secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// ResolveCaller verifies the token and returns the member id.
func (r *JWTResolver) ResolveCaller(_ context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
