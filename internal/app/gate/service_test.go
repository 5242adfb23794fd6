package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	appgate "github.com/astro-web3/authgate/internal/app/gate"
	"github.com/astro-web3/authgate/internal/domain/gate"
	"github.com/astro-web3/authgate/internal/infra/jwtauth"
	"github.com/astro-web3/authgate/internal/infra/keys"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "app-layer-secret"

func newAppService(t *testing.T) appgate.Service {
	t.Helper()
	provider, err := keys.NewStaticProvider(testSecret, "")
	if err != nil {
		t.Fatalf("failed to build key provider: %v", err)
	}
	validator, err := jwtauth.NewValidator(jwtauth.DefaultConfig(), provider)
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	domain := gate.NewService(gate.NewExemptionMatcher(gate.DefaultExemptSubstrings), validator)
	return appgate.NewService(domain)
}

func mint(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         "u1",
		"email":       "u1@example.com",
		"rolesset":    []string{"admin", "ops"},
		"rolesstring": []string{"R1"},
		"authorities": []string{"READ"},
		"exp":         exp.Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	return tok
}

func TestCheck_EndToEnd(t *testing.T) {
	svc := newAppService(t)
	ctx := context.Background()

	t.Run("exempt login path without header", func(t *testing.T) {
		d := svc.Check(ctx, "/api/auth/login", "")
		if !d.Allow || !d.Exempt {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("basic scheme is rejected", func(t *testing.T) {
		d := svc.Check(ctx, "/orders/123", "Basic xyz")
		if d.Allow || !errors.Is(d.Reason, gate.ErrMissingOrMalformedHeader) {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		d := svc.Check(ctx, "/orders/123", "Bearer "+mint(t, time.Now().Add(-time.Minute)))
		if d.Allow || !errors.Is(d.Reason, gate.ErrInvalidToken) {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("valid token projects headers", func(t *testing.T) {
		d := svc.Check(ctx, "/orders/123", "Bearer "+mint(t, time.Now().Add(time.Hour)))
		if !d.Allow || d.Exempt {
			t.Fatalf("decision = %+v", d)
		}
		want := map[string]string{
			"X-User-Id":          "u1",
			"X-User-RoleSet":     "admin,ops",
			"X-User-Roles":       "R1",
			"X-User-Authorities": "READ",
		}
		for k, v := range want {
			if d.Headers[k] != v {
				t.Errorf("%s = %q, want %q", k, d.Headers[k], v)
			}
		}
	})
}
