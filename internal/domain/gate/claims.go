package gate

import (
	"fmt"
	"net/http"
	"strings"
)

// Identity headers written by the gate. Callers can never set them: every
// transport removes inbound copies before applying the synthesized values.
const (
	HeaderUserID          = "X-User-Id"
	HeaderUserRoleSet     = "X-User-RoleSet"
	HeaderUserRoles       = "X-User-Roles"
	HeaderUserAuthorities = "X-User-Authorities"
)

// IdentityHeaders lists every header the gate owns.
//
//nolint:gochecknoglobals // read-only header set
var IdentityHeaders = []string{
	HeaderUserID,
	HeaderUserRoleSet,
	HeaderUserRoles,
	HeaderUserAuthorities,
}

const (
	claimSubject     = "sub"
	claimEmail       = "email"
	claimRoleSet     = "rolesset"
	claimRoles       = "rolesstring"
	claimAuthorities = "authorities"

	listSeparator = ","
)

// Claims is the identity carried by a verified token.
type Claims struct {
	Subject     string
	Email       string
	RoleSet     []string
	Roles       []string
	Authorities []string
}

// ClaimsFromMap decodes the verified claim set. Optional list claims that are
// absent or null become empty slices. A claim with the wrong shape, or a
// missing subject, fails with ErrMalformedClaims.
func ClaimsFromMap(raw map[string]any) (*Claims, error) {
	subject, err := requiredString(raw, claimSubject)
	if err != nil {
		return nil, err
	}

	email, err := optionalString(raw, claimEmail)
	if err != nil {
		return nil, err
	}

	c := &Claims{Subject: subject, Email: email}
	if c.RoleSet, err = stringList(raw, claimRoleSet); err != nil {
		return nil, err
	}
	if c.Roles, err = stringList(raw, claimRoles); err != nil {
		return nil, err
	}
	if c.Authorities, err = stringList(raw, claimAuthorities); err != nil {
		return nil, err
	}

	return c, nil
}

// Headers projects the claims onto the identity headers. List values are
// joined with a bare comma; commas inside a value are not escaped.
func (c *Claims) Headers() map[string]string {
	return map[string]string{
		HeaderUserID:          c.Subject,
		HeaderUserRoleSet:     strings.Join(c.RoleSet, listSeparator),
		HeaderUserRoles:       strings.Join(c.Roles, listSeparator),
		HeaderUserAuthorities: strings.Join(c.Authorities, listSeparator),
	}
}

// ApplyIdentity removes any caller-supplied identity headers from h and then
// sets the given values. Passing nil headers only strips.
func ApplyIdentity(h http.Header, headers map[string]string) {
	for _, name := range IdentityHeaders {
		h.Del(name)
	}
	for k, v := range headers {
		h.Set(k, v)
	}
}

func requiredString(raw map[string]any, name string) (string, error) {
	s, err := optionalString(raw, name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrMalformedClaims, name)
	}
	return s, nil
}

func optionalString(raw map[string]any, name string) (string, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrMalformedClaims, name, v)
	}
	return s, nil
}

func stringList(raw map[string]any, name string) ([]string, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return []string{}, nil
	}

	switch list := v.(type) {
	case []string:
		return append([]string{}, list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want string", ErrMalformedClaims, name, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want array", ErrMalformedClaims, name, v)
	}
}
