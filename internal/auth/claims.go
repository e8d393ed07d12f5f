// Package auth checks HS256 bearer tokens and keeps the caller in the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config is what a token must match: the shared signing secret and, when
// set, the issuer.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the caller identity handlers work with.
type Claims struct {
	Subject   string
	Role      string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

var (
	// ErrMissingToken means the request carried no token at all.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken means a token was presented but rejected.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// scopeSet accepts scopes either as a JSON array or as one space-delimited
// string, the two shapes identity providers emit.
type scopeSet map[string]struct{}

func (s *scopeSet) UnmarshalJSON(data []byte) error {
	var names []string
	var joined string
	switch {
	case json.Unmarshal(data, &names) == nil:
	case json.Unmarshal(data, &joined) == nil:
		names = strings.Fields(joined)
	default:
		// Anything else grants nothing.
	}
	out := make(scopeSet, len(names))
	for _, name := range names {
		if name != "" {
			out[name] = struct{}{}
		}
	}
	*s = out
	return nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role   string   `json:"role"`
	Scopes scopeSet `json:"scopes"`
}

// Parse verifies token against cfg.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser(parserOptions(cfg)...)
	var tc tokenClaims
	if _, err := parser.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	scopes := map[string]struct{}(tc.Scopes)
	if scopes == nil {
		scopes = map[string]struct{}{}
	}
	return &Claims{
		Subject:   tc.Subject,
		Role:      tc.Role,
		Scopes:    scopes,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

func parserOptions(cfg Config) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return opts
}

// HasScope reports whether the caller was granted scope. A nil receiver has none.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims put there by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}
