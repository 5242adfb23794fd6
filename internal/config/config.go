package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/astro-web3/authgate/internal/domain/gate"
	"github.com/spf13/viper"
)

const (
	KeySourceStatic = "static"
	KeySourceRedis  = "redis"
	KeySourceJWKS   = "jwks"
)

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	GRPC struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"grpc"`

	Proxy struct {
		// UpstreamURL enables inline proxy mode. Empty means forward-auth only.
		UpstreamURL   string        `mapstructure:"upstream_url"`
		FlushInterval time.Duration `mapstructure:"flush_interval"`
	} `mapstructure:"proxy"`

	Gate struct {
		ExemptSubstrings []string `mapstructure:"exempt_substrings"`
	} `mapstructure:"gate"`

	Token struct {
		Algorithms    []string      `mapstructure:"algorithms"`
		Issuer        string        `mapstructure:"issuer"`
		Audience      string        `mapstructure:"audience"`
		Leeway        time.Duration `mapstructure:"leeway"`
		RequireExpiry bool          `mapstructure:"require_expiry"`
	} `mapstructure:"token"`

	Keys struct {
		Source string `mapstructure:"source"`
		Static struct {
			HMACSecret    string `mapstructure:"hmac_secret"`
			PublicKeyFile string `mapstructure:"public_key_file"`
		} `mapstructure:"static"`
		Redis struct {
			URL      string `mapstructure:"url"`
			PoolSize int    `mapstructure:"pool_size"`
			Key      string `mapstructure:"key"`
		} `mapstructure:"redis"`
		JWKS struct {
			URL                string `mapstructure:"url"`
			IssuerDiscoveryURL string `mapstructure:"issuer_discovery_url"`
		} `mapstructure:"jwks"`
		RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
		MinRefreshInterval time.Duration `mapstructure:"min_refresh_interval"`
	} `mapstructure:"keys"`

	Observability struct {
		TraceEnabled       bool    `mapstructure:"trace_enabled"`
		TracingEndpointURL string  `mapstructure:"tracing_endpoint_url"`
		TraceSampleRatio   float64 `mapstructure:"trace_sample_ratio"`
		TracingInsecure    bool    `mapstructure:"tracing_insecure"`
		LogLevel           string  `mapstructure:"log_level"`
		Format             string  `mapstructure:"log_format"`
		LogSource          bool    `mapstructure:"log_source"`
	} `mapstructure:"observability"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.addr", ":9191")

	v.SetDefault("proxy.upstream_url", "")
	v.SetDefault("proxy.flush_interval", 100*time.Millisecond)

	v.SetDefault("gate.exempt_substrings", gate.DefaultExemptSubstrings)

	v.SetDefault("token.algorithms", []string{"HS256"})
	v.SetDefault("token.issuer", "")
	v.SetDefault("token.audience", "")
	v.SetDefault("token.leeway", time.Duration(0))
	v.SetDefault("token.require_expiry", true)

	// every key needs a default so AUTHGATE_* env vars reach Unmarshal
	v.SetDefault("keys.source", KeySourceStatic)
	v.SetDefault("keys.static.hmac_secret", "")
	v.SetDefault("keys.static.public_key_file", "")
	v.SetDefault("keys.redis.url", "")
	v.SetDefault("keys.redis.pool_size", 10)
	v.SetDefault("keys.redis.key", "")
	v.SetDefault("keys.jwks.url", "")
	v.SetDefault("keys.jwks.issuer_discovery_url", "")
	v.SetDefault("keys.refresh_interval", 15*time.Minute)
	v.SetDefault("keys.min_refresh_interval", 30*time.Second)

	v.SetDefault("observability.trace_enabled", false)
	v.SetDefault("observability.tracing_endpoint_url", "")
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.tracing_insecure", true)
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.log_source", false)
}

// Load reads config.yaml (plus config.$APP_ENV.yaml when present) from
// ./config or the working directory, then applies AUTHGATE_* env overrides.
// A missing config file is allowed; defaults and env still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("AUTHGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			slog.Default().Info("No environment-specific config (optional)", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		slog.Default().Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	return cfg
}

// Validate rejects configurations that would start a gate unable to verify
// any token.
func (c *Config) Validate() error {
	if len(c.Token.Algorithms) == 0 {
		return errors.New("token.algorithms must not be empty")
	}

	switch c.Keys.Source {
	case KeySourceStatic:
		if c.Keys.Static.HMACSecret == "" && c.Keys.Static.PublicKeyFile == "" {
			return errors.New("keys.static needs hmac_secret or public_key_file")
		}
	case KeySourceRedis:
		if c.Keys.Redis.URL == "" {
			return errors.New("keys.redis.url is required")
		}
	case KeySourceJWKS:
		if c.Keys.JWKS.URL == "" && c.Keys.JWKS.IssuerDiscoveryURL == "" {
			return errors.New("keys.jwks needs url or issuer_discovery_url")
		}
	default:
		return fmt.Errorf("unknown keys.source %q", c.Keys.Source)
	}

	if r := c.Observability.TraceSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.trace_sample_ratio %v must be within [0, 1]", r)
	}

	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required when grpc is enabled")
	}

	return nil
}
