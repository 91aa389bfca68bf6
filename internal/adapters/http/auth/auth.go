// Package auth gates HTTP requests behind bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel kinds for authorization failures.
var (
	ErrScheme       = errors.New("invalid authentication scheme")
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Gate decides whether a request may proceed.
type Gate interface {
	Authorize(r *http.Request) error
}

// AllowAll admits every request.
type AllowAll struct{}

// Authorize always succeeds.
func (AllowAll) Authorize(*http.Request) error { return nil }

// JWTGate accepts HS512 bearer tokens signed with a shared secret and issued by
// a known issuer.
type JWTGate struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// GateOption configures a JWTGate.
type GateOption func(*JWTGate)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) GateOption {
	return func(g *JWTGate) { g.now = now }
}

// NewJWTGate creates a gate for secret and issuer.
func NewJWTGate(secret, issuer string, opts ...GateOption) *JWTGate {
	g := &JWTGate{secret: []byte(secret), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks the Authorization header.
func (g *JWTGate) Authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" || token == "" {
		return ErrScheme
	}
	return g.Verify(token)
}

// Verify validates a raw token.
func (g *JWTGate) Verify(token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}

// Issue signs a token for subject valid for ttl.
func (g *JWTGate) Issue(subject string, ttl time.Duration) (string, error) {
	now := g.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    g.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Status maps an authorization error to its HTTP status.
func Status(err error) int {
	if errors.Is(err, ErrTokenExpired) {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}
