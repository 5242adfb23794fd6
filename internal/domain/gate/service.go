package gate

import (
	"context"
	"fmt"
	"strings"
)

// BearerPrefix is the exact, case-sensitive scheme prefix the gate accepts.
const BearerPrefix = "Bearer "

// TokenValidator is the signature/expiry/not-before/algorithm check. It
// returns the verified claim set or an error; the gate never inspects which.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (map[string]any, error)
}

type Service interface {
	// Authorize runs one request through the gate. authorization is the first
	// Authorization header value, or "" when absent.
	Authorize(ctx context.Context, path, authorization string) *Decision
}

type service struct {
	exemptions *ExemptionMatcher
	validator  TokenValidator
}

func NewService(exemptions *ExemptionMatcher, validator TokenValidator) Service {
	return &service{
		exemptions: exemptions,
		validator:  validator,
	}
}

func (s *service) Authorize(ctx context.Context, path, authorization string) *Decision {
	if s.exemptions.IsExempt(ctx, path) {
		return exempt()
	}

	token, ok := strings.CutPrefix(authorization, BearerPrefix)
	if !ok {
		return deny(ErrMissingOrMalformedHeader)
	}

	raw, err := s.validate(ctx, token)
	if err != nil {
		return deny(fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}

	claims, err := ClaimsFromMap(raw)
	if err != nil {
		return deny(err)
	}

	return allow(claims.Headers())
}

// validate converts a panic inside the validator into an error so a faulty
// key source or parser still ends in a denial.
func (s *service) validate(ctx context.Context, token string) (raw map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("validator panic: %v", r)
		}
	}()

	return s.validator.Validate(ctx, token)
}
