package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CSRF issues and checks anti-forgery tokens for cookie sessions. A token is
// an HS256 JWT whose subject is the session's public id; anonymous tokens have
// no subject and are only good for the login request.
type CSRF struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// CSRFOption configures CSRF.
type CSRFOption func(*CSRF)

// WithCSRFClock overrides the time source.
func WithCSRFClock(fn func() time.Time) CSRFOption {
	return func(c *CSRF) {
		if fn != nil {
			c.now = fn
		}
	}
}

func NewCSRF(key []byte, ttl time.Duration, opts ...CSRFOption) (*CSRF, error) {
	if len(key) < 32 {
		return nil, errors.New("csrf key must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("csrf ttl must be positive")
	}
	c := &CSRF{key: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue mints a token bound to sessionID. Every call yields a new value.
func (c *CSRF) Issue(sessionID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign csrf token: %w", err)
	}
	return signed, nil
}

// Verify checks that token is valid and bound to sessionID.
func (c *CSRF) Verify(token, sessionID string) error {
	if _, err := c.parse(token, sessionID); err != nil {
		return err
	}
	return nil
}

// Fresh reports whether token verifies for sessionID and is younger than half
// its lifetime. Callers reissue stale tokens on authenticated responses, so a
// session active at least once per half lifetime always holds a valid one.
func (c *CSRF) Fresh(token, sessionID string) bool {
	claims, err := c.parse(token, sessionID)
	if err != nil || claims.IssuedAt == nil {
		return false
	}
	return c.now().Sub(claims.IssuedAt.Time) < c.ttl/2
}

func (c *CSRF) parse(token, sessionID string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if token == "" {
		return claims, errCSRFMismatch
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		return claims, errCSRFMismatch
	}
	if claims.Subject != sessionID {
		return claims, errCSRFMismatch
	}
	return claims, nil
}
