package gate

import "errors"

// Denial reasons. They are recorded in logs and spans only; every one of them
// reaches the caller as the same empty 401.
var (
	ErrMissingOrMalformedHeader = errors.New("missing or malformed authorization header")
	ErrInvalidToken             = errors.New("invalid token")
	ErrMalformedClaims          = errors.New("malformed claims")
)
