package jwtauth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/astro-web3/authgate/internal/infra/jwtauth"
	"github.com/astro-web3/authgate/internal/infra/keys"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-unit-tests"

type staticKeys struct {
	material any
	err      error
}

func (s staticKeys) Key(context.Context, string, string) (any, error) {
	return s.material, s.err
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":         "u1",
		"rolesset":    []string{"admin", "ops"},
		"rolesstring": []string{"R1"},
		"authorities": []string{"READ"},
		"iat":         time.Now().Unix(),
		"exp":         time.Now().Add(time.Hour).Unix(),
	}
}

func newHMACValidator(t *testing.T, cfg jwtauth.Config) *jwtauth.Validator {
	t.Helper()
	provider, err := keys.NewStaticProvider(testSecret, "")
	if err != nil {
		t.Fatalf("failed to build provider: %v", err)
	}
	v, err := jwtauth.NewValidator(cfg, provider)
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	return v
}

func TestValidator_ValidToken(t *testing.T) {
	v := newHMACValidator(t, jwtauth.DefaultConfig())
	tok := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	claims, err := v.Validate(context.Background(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims["sub"] != "u1" {
		t.Errorf("sub = %v", claims["sub"])
	}
	roles, ok := claims["rolesset"].([]any)
	if !ok || len(roles) != 2 || roles[0] != "admin" {
		t.Errorf("rolesset = %#v", claims["rolesset"])
	}
}

func TestValidator_Rejects(t *testing.T) {
	now := time.Now()

	expired := validClaims()
	expired["exp"] = now.Add(-time.Hour).Unix()

	notYet := validClaims()
	notYet["nbf"] = now.Add(time.Hour).Unix()

	noExp := validClaims()
	delete(noExp, "exp")

	cases := map[string]string{
		"expired":        sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"not before":     sign(t, jwt.SigningMethodHS256, []byte(testSecret), notYet),
		"missing exp":    sign(t, jwt.SigningMethodHS256, []byte(testSecret), noExp),
		"wrong secret":   sign(t, jwt.SigningMethodHS256, []byte("other-secret"), validClaims()),
		"disallowed alg": sign(t, jwt.SigningMethodHS384, []byte(testSecret), validClaims()),
		"unsigned":       sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims()),
		"garbage":        "invalid-token-string",
		"empty":          "",
	}

	v := newHMACValidator(t, jwtauth.DefaultConfig())
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tok)
			if !errors.Is(err, jwtauth.ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestValidator_Leeway(t *testing.T) {
	cfg := jwtauth.DefaultConfig()
	cfg.Leeway = time.Minute
	v := newHMACValidator(t, cfg)

	claims := validClaims()
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()

	if _, err := v.Validate(context.Background(), sign(t, jwt.SigningMethodHS256, []byte(testSecret), claims)); err != nil {
		t.Errorf("expected token within leeway to pass, got %v", err)
	}
}

func TestValidator_IssuerAndAudience(t *testing.T) {
	cfg := jwtauth.DefaultConfig()
	cfg.Issuer = "https://issuer.example"
	cfg.Audience = "orders"
	v := newHMACValidator(t, cfg)

	good := validClaims()
	good["iss"] = "https://issuer.example"
	good["aud"] = []string{"orders", "billing"}
	if _, err := v.Validate(context.Background(), sign(t, jwt.SigningMethodHS256, []byte(testSecret), good)); err != nil {
		t.Errorf("expected matching iss/aud to pass, got %v", err)
	}

	badIss := validClaims()
	badIss["iss"] = "https://evil.example"
	badIss["aud"] = "orders"
	if _, err := v.Validate(context.Background(), sign(t, jwt.SigningMethodHS256, []byte(testSecret), badIss)); err == nil {
		t.Error("expected wrong issuer to fail")
	}

	badAud := validClaims()
	badAud["iss"] = "https://issuer.example"
	badAud["aud"] = "billing"
	if _, err := v.Validate(context.Background(), sign(t, jwt.SigningMethodHS256, []byte(testSecret), badAud)); err == nil {
		t.Error("expected wrong audience to fail")
	}
}

func TestValidator_KeyProviderError(t *testing.T) {
	v, err := jwtauth.NewValidator(jwtauth.DefaultConfig(), staticKeys{err: keys.ErrKeyNotFound})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	_, err = v.Validate(context.Background(), sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()))
	if !errors.Is(err, jwtauth.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestValidator_RSAAndAlgorithmConfusion(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	material, err := keys.ParseMaterial(pubPEM)
	if err != nil {
		t.Fatalf("failed to parse pem: %v", err)
	}
	provider := staticKeysFor(material)

	cfg := jwtauth.DefaultConfig()
	cfg.AllowedAlgs = []string{"RS256", "HS256"}
	v, err := jwtauth.NewValidator(cfg, provider)
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	if _, err := v.Validate(context.Background(), sign(t, jwt.SigningMethodRS256, priv, validClaims())); err != nil {
		t.Errorf("expected RS256 token to pass, got %v", err)
	}

	// HS256 token keyed with the public key bytes must not verify.
	forged := sign(t, jwt.SigningMethodHS256, pubPEM, validClaims())
	if _, err := v.Validate(context.Background(), forged); err == nil {
		t.Error("expected algorithm confusion token to fail")
	}
}

func TestNewValidator_RejectsBadConfig(t *testing.T) {
	provider := staticKeys{material: []byte(testSecret)}

	if _, err := jwtauth.NewValidator(jwtauth.Config{}, provider); err == nil {
		t.Error("expected error for empty algorithm list")
	}
	if _, err := jwtauth.NewValidator(jwtauth.Config{AllowedAlgs: []string{"none"}}, provider); err == nil {
		t.Error("expected error for none algorithm")
	}
	if _, err := jwtauth.NewValidator(jwtauth.Config{AllowedAlgs: []string{"XX999"}}, provider); err == nil {
		t.Error("expected error for unknown algorithm")
	}
	if _, err := jwtauth.NewValidator(jwtauth.DefaultConfig(), nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

// staticKeysFor returns a provider that applies the same type checks as the
// real key sets.
func staticKeysFor(material any) keys.Provider {
	return &setProvider{set: keys.NewSet([]keys.Key{{Material: material}}, time.Now())}
}

type setProvider struct {
	set *keys.Set
}

func (p *setProvider) Key(_ context.Context, kid, alg string) (any, error) {
	if k, ok := p.set.Lookup(kid, alg); ok {
		return k, nil
	}
	return nil, keys.ErrKeyNotFound
}
