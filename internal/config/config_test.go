package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/astro-web3/authgate/internal/config"
	"github.com/astro-web3/authgate/internal/domain/gate"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTHGATE_KEYS_STATIC_HMAC_SECRET", "from-env")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Keys.Source != config.KeySourceStatic {
		t.Errorf("keys.source = %q", cfg.Keys.Source)
	}
	if cfg.Keys.Static.HMACSecret != "from-env" {
		t.Errorf("hmac_secret = %q", cfg.Keys.Static.HMACSecret)
	}
	if !reflect.DeepEqual(cfg.Gate.ExemptSubstrings, gate.DefaultExemptSubstrings) {
		t.Errorf("exempt_substrings = %v", cfg.Gate.ExemptSubstrings)
	}
	if !reflect.DeepEqual(cfg.Token.Algorithms, []string{"HS256"}) {
		t.Errorf("algorithms = %v", cfg.Token.Algorithms)
	}
	if !cfg.Token.RequireExpiry {
		t.Error("require_expiry should default to true")
	}
	if cfg.Keys.RefreshInterval != 15*time.Minute {
		t.Errorf("refresh_interval = %v", cfg.Keys.RefreshInterval)
	}
	if cfg.Observability.TraceSampleRatio != 1.0 {
		t.Errorf("trace_sample_ratio = %v", cfg.Observability.TraceSampleRatio)
	}
}

func TestLoad_FileAndEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APP_ENV", "staging")

	writeConfig(t, dir, "config.yaml", `
gate:
  exempt_substrings: ["/health", "/public"]
token:
  algorithms: [RS256]
  leeway: 45s
keys:
  source: jwks
  jwks:
    url: https://issuer.example/keys
`)
	writeConfig(t, dir, "config.staging.yaml", `
token:
  audience: orders
`)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(cfg.Gate.ExemptSubstrings, []string{"/health", "/public"}) {
		t.Errorf("exempt_substrings = %v", cfg.Gate.ExemptSubstrings)
	}
	if cfg.Token.Leeway != 45*time.Second {
		t.Errorf("leeway = %v", cfg.Token.Leeway)
	}
	if cfg.Token.Audience != "orders" {
		t.Errorf("audience = %q", cfg.Token.Audience)
	}
	if cfg.Keys.JWKS.URL != "https://issuer.example/keys" {
		t.Errorf("jwks.url = %q", cfg.Keys.JWKS.URL)
	}
}

func TestLoad_ExemptSubstringsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTHGATE_KEYS_STATIC_HMAC_SECRET", "s")
	t.Setenv("AUTHGATE_GATE_EXEMPT_SUBSTRINGS", "/docs,/login")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg.Gate.ExemptSubstrings, []string{"/docs", "/login"}) {
		t.Errorf("exempt_substrings = %v", cfg.Gate.ExemptSubstrings)
	}
}

func TestLoad_InvalidWithoutKeys(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := config.Load(); err == nil {
		t.Fatal("expected validation error without key material")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.Token.Algorithms = []string{"HS256"}
		cfg.Keys.Source = config.KeySourceStatic
		cfg.Keys.Static.HMACSecret = "s"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*config.Config){
		"no algorithms":   func(c *config.Config) { c.Token.Algorithms = nil },
		"unknown source":  func(c *config.Config) { c.Keys.Source = "vault" },
		"redis no url":    func(c *config.Config) { c.Keys.Source = config.KeySourceRedis },
		"jwks no url":     func(c *config.Config) { c.Keys.Source = config.KeySourceJWKS },
		"static no keys":  func(c *config.Config) { c.Keys.Static.HMACSecret = "" },
		"grpc no address": func(c *config.Config) { c.GRPC.Enabled = true },
		"negative ratio":  func(c *config.Config) { c.Observability.TraceSampleRatio = -0.1 },
		"ratio above one": func(c *config.Config) { c.Observability.TraceSampleRatio = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
