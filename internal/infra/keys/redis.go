package keys

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding signing keys, field = kid.
const DefaultRedisKey = "authgate:signing-keys"

// DefaultKeyID is the hash field used for tokens that carry no kid.
const DefaultKeyID = "default"

type redisSource struct {
	client *redis.Client
	key    string
}

func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisSource reads keys from a Redis hash. Each field is a key ID and
// each value an HMAC secret or a PEM public key. The DefaultKeyID field is
// exposed without an ID so it matches tokens that have no kid header.
func NewRedisSource(client *redis.Client, key string) Source {
	if key == "" {
		key = DefaultRedisKey
	}
	return &redisSource{client: client, key: key}
}

func (r *redisSource) Fetch(ctx context.Context) (*Set, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read key store: %w", err)
	}

	ks := make([]Key, 0, len(fields))
	for kid, value := range fields {
		material, err := ParseMaterial([]byte(value))
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable signing key",
				slog.String("kid", kid),
				slog.String("error", err.Error()),
			)
			continue
		}
		id := kid
		if kid == DefaultKeyID {
			id = ""
		}
		ks = append(ks, Key{ID: id, Material: material})
	}

	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: redis hash %s", ErrNoKeys, r.key)
	}

	return NewSet(ks, time.Now()), nil
}
