// Package jwtauth is the token validation primitive behind the gate: it
// verifies signature, algorithm, expiry and not-before, and returns the raw
// claim set.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/astro-web3/authgate/internal/infra/keys"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized wraps every validation failure.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// Config controls validation policy. Issuer and Audience are only enforced
// when set.
type Config struct {
	AllowedAlgs   []string
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireExpiry bool
}

// DefaultConfig returns a Config accepting HS256 with no leeway.
func DefaultConfig() Config {
	return Config{
		AllowedAlgs:   []string{"HS256"},
		RequireExpiry: true,
	}
}

type Validator struct {
	keys   keys.Provider
	parser *jwt.Parser
}

func NewValidator(cfg Config, provider keys.Provider) (*Validator, error) {
	if provider == nil {
		return nil, errors.New("key provider is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		return nil, errors.New("at least one allowed algorithm is required")
	}
	for _, alg := range cfg.AllowedAlgs {
		if alg == "none" || jwt.GetSigningMethod(alg) == nil {
			return nil, fmt.Errorf("unsupported algorithm %q", alg)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.AllowedAlgs),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.RequireExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	return &Validator{
		keys:   provider,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Validate parses and verifies tokenString. exp and nbf are checked whenever
// present.
func (v *Validator) Validate(ctx context.Context, tokenString string) (map[string]any, error) {
	claims := jwt.MapClaims{}

	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid, t.Method.Alg())
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, ErrUnauthorized
	}

	return claims, nil
}
