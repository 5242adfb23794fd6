package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	httpclient "github.com/astro-web3/authgate/pkg/http"
	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/go-jose/go-jose/v4"
)

const discoveryPath = "/.well-known/openid-configuration"

type jwksSource struct {
	jwksURL      string
	discoveryURL string

	mu         sync.Mutex
	discovered string
}

// NewJWKSSource fetches a JSON Web Key Set. When jwksURL is empty the URL is
// taken from the issuer's OpenID discovery document at issuerURL.
func NewJWKSSource(jwksURL, issuerURL string) (Source, error) {
	if jwksURL == "" && issuerURL == "" {
		return nil, errors.New("jwks url or issuer discovery url is required")
	}

	s := &jwksSource{jwksURL: jwksURL}
	if issuerURL != "" {
		s.discoveryURL = strings.TrimSuffix(issuerURL, "/") + discoveryPath
	}
	return s, nil
}

func (s *jwksSource) Fetch(ctx context.Context) (*Set, error) {
	url, err := s.resolveURL(ctx)
	if err != nil {
		return nil, err
	}

	var doc jose.JSONWebKeySet
	if err := httpclient.GetJSON(ctx, url, &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}

	ks := make([]Key, 0, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if !jwk.Valid() || !jwk.IsPublic() || jwk.Use == "enc" {
			logger.DebugContext(ctx, "skipping jwk", slog.String("kid", jwk.KeyID))
			continue
		}
		ks = append(ks, Key{
			ID:        jwk.KeyID,
			Algorithm: jwk.Algorithm,
			Material:  jwk.Key,
		})
	}

	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoKeys, url)
	}

	return NewSet(ks, time.Now()), nil
}

func (s *jwksSource) resolveURL(ctx context.Context) (string, error) {
	if s.jwksURL != "" {
		return s.jwksURL, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discovered != "" {
		return s.discovered, nil
	}

	var meta struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := httpclient.GetJSON(ctx, s.discoveryURL, &meta); err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", errors.New("oidc discovery document has no jwks_uri")
	}

	s.discovered = meta.JWKSURI
	return s.discovered, nil
}
