// Package auth issues and verifies bearer tokens and resolves them to
// admin or user principals. Tokens are HS256 JWTs signed with the
// configured secret.
package auth

import (
	"fmt"
	"time"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates admin tokens from auth-record tokens.
type TokenKind string

const (
	TokenKindAdmin TokenKind = "admin"
	TokenKindUser  TokenKind = "user"
)

// DefaultTokenTTL is the token lifetime when not configured otherwise.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload. Collection is set for user tokens only and
// names the auth collection the subject record lives in.
type Claims struct {
	Kind       TokenKind `json:"kind"`
	Collection string    `json:"collection,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer over the shared secret.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the given subject.
func (t *TokenIssuer) Issue(subject string, kind TokenKind, collection string) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind:       kind,
		Collection: collection,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning its claims.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}
	if claims.Kind != TokenKindAdmin && claims.Kind != TokenKindUser {
		return nil, apperrors.Unauthorized("invalid token kind")
	}
	return claims, nil
}
