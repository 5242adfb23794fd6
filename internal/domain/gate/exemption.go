package gate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/astro-web3/authgate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultExemptSubstrings are the documentation and login paths that never
// require a token. "/swagger-ui.html" is already covered by "/swagger-ui";
// it is listed so the set matches what operators expect to see.
//
//nolint:gochecknoglobals // read-only default list
var DefaultExemptSubstrings = []string{
	"/v3/api-docs",
	"/swagger-ui",
	"/swagger-ui.html",
	"/webjars",
	"/api/auth",
}

// ExemptionMatcher decides from the path alone whether the gate is bypassed.
// It is immutable after construction.
type ExemptionMatcher struct {
	substrings []string
}

// NewExemptionMatcher copies substrings, dropping empty entries: an empty
// substring is contained in every path and would disable authentication.
func NewExemptionMatcher(substrings []string) *ExemptionMatcher {
	kept := make([]string, 0, len(substrings))
	for _, s := range substrings {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return &ExemptionMatcher{substrings: kept}
}

// Substrings returns a copy of the active exemption list.
func (m *ExemptionMatcher) Substrings() []string {
	return append([]string(nil), m.substrings...)
}

// IsExempt reports whether path contains any configured substring.
// Matching is case-sensitive containment, not prefix or glob.
func (m *ExemptionMatcher) IsExempt(ctx context.Context, path string) bool {
	for _, s := range m.substrings {
		if strings.Contains(path, s) {
			tracer.AddEvent(ctx, "exemption.applied",
				attribute.String("exemption.substring", s),
			)
			logger.DebugContext(ctx, "exemption applied",
				slog.String("path", path),
				slog.String("substring", s),
			)
			return true
		}
	}

	tracer.AddEvent(ctx, "exemption.not_applied")
	logger.DebugContext(ctx, "exemption not applied", slog.String("path", path))
	return false
}
