// Package di builds the gate and its key material from configuration so both
// transports share one instance.
package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	appgate "github.com/astro-web3/authgate/internal/app/gate"
	"github.com/astro-web3/authgate/internal/config"
	"github.com/astro-web3/authgate/internal/domain/gate"
	"github.com/astro-web3/authgate/internal/infra/jwtauth"
	"github.com/astro-web3/authgate/internal/infra/keys"
	"github.com/astro-web3/authgate/pkg/logger"
)

type Gate struct {
	Service appgate.Service

	refresher *keys.CachedProvider
	closers   []func() error
}

// NewGate builds the gate. Remote key sources are fetched once here, so a
// gate that cannot load any key fails at startup rather than denying every
// request.
func NewGate(ctx context.Context, cfg *config.Config) (*Gate, error) {
	g := &Gate{}

	provider, err := g.keyProvider(ctx, cfg)
	if err != nil {
		_ = g.Close()
		return nil, err
	}

	validator, err := jwtauth.NewValidator(jwtauth.Config{
		AllowedAlgs:   cfg.Token.Algorithms,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		RequireExpiry: cfg.Token.RequireExpiry,
	}, provider)
	if err != nil {
		_ = g.Close()
		return nil, fmt.Errorf("failed to build token validator: %w", err)
	}

	exemptions := gate.NewExemptionMatcher(cfg.Gate.ExemptSubstrings)
	logger.InfoContext(ctx, "gate configured",
		slog.Any("exempt_substrings", exemptions.Substrings()),
		slog.Any("algorithms", cfg.Token.Algorithms),
		slog.String("key_source", cfg.Keys.Source),
	)

	g.Service = appgate.NewService(gate.NewService(exemptions, validator))
	return g, nil
}

func (g *Gate) keyProvider(ctx context.Context, cfg *config.Config) (keys.Provider, error) {
	var source keys.Source

	switch cfg.Keys.Source {
	case config.KeySourceStatic:
		p, err := keys.NewStaticProvider(cfg.Keys.Static.HMACSecret, cfg.Keys.Static.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load static keys: %w", err)
		}
		return p, nil
	case config.KeySourceRedis:
		client, err := keys.NewRedisClient(cfg.Keys.Redis.URL, cfg.Keys.Redis.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		g.closers = append(g.closers, client.Close)
		source = keys.NewRedisSource(client, cfg.Keys.Redis.Key)
	case config.KeySourceJWKS:
		s, err := keys.NewJWKSSource(cfg.Keys.JWKS.URL, cfg.Keys.JWKS.IssuerDiscoveryURL)
		if err != nil {
			return nil, err
		}
		source = s
	default:
		return nil, fmt.Errorf("unknown key source %q", cfg.Keys.Source)
	}

	cached := keys.NewCachedProvider(source,
		keys.WithRefreshInterval(cfg.Keys.RefreshInterval),
		keys.WithMinRefreshInterval(cfg.Keys.MinRefreshInterval),
	)
	if err := cached.Prime(ctx); err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	g.refresher = cached
	return cached, nil
}

// Start runs background key refresh until ctx ends. It is a no-op for static
// keys.
func (g *Gate) Start(ctx context.Context) {
	if g.refresher != nil {
		go g.refresher.Run(ctx)
	}
}

func (g *Gate) Close() error {
	var errs []error
	for _, c := range g.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
