package keys

import (
	"context"
	"fmt"
	"os"
	"time"
)

// StaticProvider serves keys fixed at startup.
type StaticProvider struct {
	set *Set
}

// NewStaticProvider builds a provider from an HMAC secret and/or a PEM public
// key file. At least one must be given.
func NewStaticProvider(hmacSecret, publicKeyFile string) (*StaticProvider, error) {
	var ks []Key

	if hmacSecret != "" {
		ks = append(ks, Key{Material: []byte(hmacSecret)})
	}

	if publicKeyFile != "" {
		pem, err := os.ReadFile(publicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key file: %w", err)
		}
		material, err := ParseMaterial(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key file: %w", err)
		}
		ks = append(ks, Key{Material: material})
	}

	if len(ks) == 0 {
		return nil, ErrNoKeys
	}

	return &StaticProvider{set: NewSet(ks, time.Now())}, nil
}

// Key ignores kid: static keys carry no ID.
func (p *StaticProvider) Key(_ context.Context, _, alg string) (any, error) {
	if k, ok := p.set.Lookup("", alg); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: alg %s", ErrKeyNotFound, alg)
}
