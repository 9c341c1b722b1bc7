// Package session carries the broker credentials explicitly into every
// component that talks to the broker.
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNotAuthenticated means the token or API key is missing
	ErrNotAuthenticated = errors.New("not authenticated: broker token and API key are required")
	// ErrExpired means the bearer token carries an exp claim in the past
	ErrExpired = errors.New("session expired")
)

// Session is the opaque credential pair handed out by the session provider
type Session struct {
	Token  string // bearer JWT from the broker login
	APIKey string // broker private key (X-PrivateKey)
}

// FromEnv reads ANGEL_JWT and ANGEL_API_KEY
func FromEnv() Session {
	return Session{
		Token:  os.Getenv("ANGEL_JWT"),
		APIKey: os.Getenv("ANGEL_API_KEY"),
	}
}

// Validate fails fast when either credential is missing. Tokens that parse as
// JWTs are also checked for expiry; tokens that don't parse are treated as opaque.
func (s Session) Validate(now time.Time) error {
	if s.Token == "" || s.APIKey == "" {
		return ErrNotAuthenticated
	}

	exp, ok := s.ExpiresAt()
	if ok && !exp.After(now) {
		return fmt.Errorf("%w at %s", ErrExpired, exp.Format(time.RFC3339))
	}
	return nil
}

// ExpiresAt returns the exp claim of the bearer token, without verifying the signature
func (s Session) ExpiresAt() (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Authorization returns the Authorization header value
func (s Session) Authorization() string {
	return "Bearer " + s.Token
}
