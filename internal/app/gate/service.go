package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/astro-web3/authgate/internal/domain/gate"
	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/astro-web3/authgate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

type Service interface {
	Check(ctx context.Context, path, authorization string) *gate.Decision
}

type service struct {
	domainService gate.Service
}

func NewService(domainService gate.Service) Service {
	return &service{
		domainService: domainService,
	}
}

func (s *service) Check(ctx context.Context, path, authorization string) *gate.Decision {
	ctx, span := tracer.Start(ctx, "app.gate.Check")
	defer span.End()

	span.SetAttributes(
		attribute.String("http.path", path),
		attribute.String("authz.token_prefix", tokenPrefix(authorization)),
	)

	decision := s.domainService.Authorize(ctx, path, authorization)

	switch {
	case decision.Exempt:
		span.SetAttributes(
			attribute.Bool("authz.allowed", true),
			attribute.Bool("authz.exempt", true),
		)
	case decision.Allow:
		span.SetAttributes(
			attribute.Bool("authz.allowed", true),
			attribute.String("authz.subject", decision.Headers[gate.HeaderUserID]),
		)
	default:
		reason := reasonCode(decision.Reason)
		span.SetAttributes(
			attribute.Bool("authz.allowed", false),
			attribute.String("authz.reason", reason),
		)
		logger.WarnContext(ctx, "authentication denied",
			slog.String("path", path),
			slog.String("reason", reason),
			slog.String("detail", errString(decision.Reason)),
		)
	}

	return decision
}

// reasonCode collapses a denial to its category for metrics-friendly span
// attributes.
func reasonCode(err error) string {
	switch {
	case errors.Is(err, gate.ErrMissingOrMalformedHeader):
		return "missing_or_malformed_header"
	case errors.Is(err, gate.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, gate.ErrMalformedClaims):
		return "malformed_claims"
	default:
		return "unknown"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

const tokenPrefixLength = 8

// tokenPrefix returns just enough of the credential to correlate log lines.
func tokenPrefix(authorization string) string {
	token, ok := strings.CutPrefix(authorization, gate.BearerPrefix)
	if !ok {
		return "-"
	}
	if len(token) > tokenPrefixLength {
		return token[:tokenPrefixLength] + "..."
	}
	return "***"
}
