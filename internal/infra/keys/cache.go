package keys

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/astro-web3/authgate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshInterval    = 15 * time.Minute
	DefaultMinRefreshInterval = 30 * time.Second
)

// CachedProvider serves keys from the last snapshot fetched from a Source.
// Readers load the snapshot without locking; a refresh builds a new Set and
// swaps the pointer. Refreshes happen on a ticker (Run) and on a key-ID miss,
// at most once per minRefresh, with concurrent callers sharing one fetch.
type CachedProvider struct {
	source     Source
	interval   time.Duration
	minRefresh time.Duration
	now        func() time.Time

	snapshot    atomic.Pointer[Set]
	lastAttempt atomic.Int64
	group       singleflight.Group
}

type CacheOption func(*CachedProvider)

func WithRefreshInterval(d time.Duration) CacheOption {
	return func(p *CachedProvider) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMinRefreshInterval(d time.Duration) CacheOption {
	return func(p *CachedProvider) {
		if d >= 0 {
			p.minRefresh = d
		}
	}
}

func withClock(now func() time.Time) CacheOption {
	return func(p *CachedProvider) {
		p.now = now
	}
}

func NewCachedProvider(source Source, opts ...CacheOption) *CachedProvider {
	p := &CachedProvider{
		source:     source,
		interval:   DefaultRefreshInterval,
		minRefresh: DefaultMinRefreshInterval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prime performs the initial fetch. Startup should fail if it errors.
func (p *CachedProvider) Prime(ctx context.Context) error {
	_, err := p.refresh(ctx, true)
	return err
}

// Run refreshes the snapshot every interval until ctx is done. A failed
// refresh keeps serving the previous snapshot.
func (p *CachedProvider) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.refresh(ctx, true); err != nil {
				logger.WarnContext(ctx, "scheduled key refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *CachedProvider) Key(ctx context.Context, kid, alg string) (any, error) {
	if k, ok := p.snapshot.Load().Lookup(kid, alg); ok {
		return k, nil
	}

	set, err := p.refresh(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyNotFound, err)
	}
	if k, ok := set.Lookup(kid, alg); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q alg %s", ErrKeyNotFound, kid, alg)
}

// Snapshot returns the current key set, or nil before the first fetch.
func (p *CachedProvider) Snapshot() *Set {
	return p.snapshot.Load()
}

func (p *CachedProvider) refresh(ctx context.Context, force bool) (*Set, error) {
	if !force {
		last := time.Unix(0, p.lastAttempt.Load())
		if p.now().Sub(last) < p.minRefresh {
			return p.snapshot.Load(), nil
		}
	}

	// The fetch outlives any single caller; each caller still stops waiting
	// when its own request context ends.
	ch := p.group.DoChan("refresh", func() (any, error) {
		p.lastAttempt.Store(p.now().UnixNano())

		fetchCtx, span := tracer.Start(context.WithoutCancel(ctx), "infra.keys.refresh")
		defer span.End()

		set, err := p.source.Fetch(fetchCtx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		p.snapshot.Store(set)
		span.SetAttributes(attribute.Int("keys.count", set.Len()))
		logger.InfoContext(fetchCtx, "signing keys refreshed", slog.Int("count", set.Len()))
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Set), nil
	}
}
