package session

import (
	"fmt"
	"time"

	"ReplayFM/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSigner issues and verifies signed session tokens. A token embeds the
// session id and the session's expiry, so a stale token can be rejected
// without touching the database.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner creates a signer with the shared HMAC secret.
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

// Issue creates a token for a session expiring at expiresAt.
func (s *TokenSigner) Issue(sessionID string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the session id it carries. Expired or
// tampered tokens come back as NotFound, matching how unknown sessions are
// reported.
func (s *TokenSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.NotFound("session token is invalid or expired")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", apperr.NotFound("session token carries no session id")
	}
	return claims.Subject, nil
}
