// Package keys supplies verification keys to the token validator. Static keys
// come from configuration; remote keys (Redis key store, JWKS) are held in a
// process-wide snapshot that is swapped on refresh.
package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrKeyNotFound = errors.New("no verification key for token")
	ErrNoKeys      = errors.New("key set is empty")
)

// Key is one verification key. Algorithm is optional; when set the key only
// verifies tokens signed with exactly that algorithm.
type Key struct {
	ID        string
	Algorithm string
	Material  any
}

// Set is an immutable snapshot of keys.
type Set struct {
	keys      []Key
	fetchedAt time.Time
}

func NewSet(keys []Key, fetchedAt time.Time) *Set {
	return &Set{keys: append([]Key(nil), keys...), fetchedAt: fetchedAt}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func (s *Set) FetchedAt() time.Time {
	return s.fetchedAt
}

// Lookup finds the key for a token header. With a kid the key must carry that
// ID. Without one, an unnamed key is preferred, and otherwise exactly one
// compatible key must exist. The key type must match the algorithm family so
// an RSA public key is never used as an HMAC secret.
func (s *Set) Lookup(kid, alg string) (any, bool) {
	if s == nil {
		return nil, false
	}

	if kid != "" {
		for i := range s.keys {
			if s.keys[i].ID == kid && usableFor(&s.keys[i], alg) {
				return s.keys[i].Material, true
			}
		}
		return nil, false
	}

	if k, ok := s.unique(alg, func(k *Key) bool { return k.ID == "" }); ok {
		return k, true
	}
	return s.unique(alg, func(*Key) bool { return true })
}

func (s *Set) unique(alg string, match func(*Key) bool) (any, bool) {
	var found *Key
	for i := range s.keys {
		k := &s.keys[i]
		if !match(k) || !usableFor(k, alg) {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = k
	}
	if found == nil {
		return nil, false
	}
	return found.Material, true
}

// Provider resolves the verification key for one token.
type Provider interface {
	Key(ctx context.Context, kid, alg string) (any, error)
}

// Source performs one fetch of a full key set.
type Source interface {
	Fetch(ctx context.Context) (*Set, error)
}

func usableFor(k *Key, alg string) bool {
	if k.Algorithm != "" && k.Algorithm != alg {
		return false
	}

	switch {
	case strings.HasPrefix(alg, "HS"):
		b, ok := k.Material.([]byte)
		return ok && len(b) > 0
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		_, ok := k.Material.(*rsa.PublicKey)
		return ok
	case strings.HasPrefix(alg, "ES"):
		_, ok := k.Material.(*ecdsa.PublicKey)
		return ok
	case alg == "EdDSA":
		_, ok := k.Material.(ed25519.PublicKey)
		return ok
	default:
		return false
	}
}

// ParseMaterial turns a stored key value into verification material. PEM
// encoded public keys are parsed; anything else is an HMAC secret.
func ParseMaterial(value []byte) (any, error) {
	if !strings.HasPrefix(strings.TrimSpace(string(value)), "-----BEGIN") {
		if len(value) == 0 {
			return nil, errors.New("empty hmac secret")
		}
		return value, nil
	}

	if k, err := jwt.ParseRSAPublicKeyFromPEM(value); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(value); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(value); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("unsupported public key PEM")
}
