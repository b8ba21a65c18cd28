package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/authgate/authgate/internal/crowd"
)

// Credential is the material presented by a request. It is one of
// BearerCredential, BasicCredential or CookieCredential.
type Credential interface {
	scheme() string
}

// BearerCredential is an "Authorization: Bearer <token>" header.
type BearerCredential struct {
	Token string
}

// BasicCredential is an "Authorization: Basic <base64>" header or a login form.
type BasicCredential struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// CookieCredential is an SSO cookie.
type CookieCredential struct {
	Name  string
	Value string
}

func (BearerCredential) scheme() string { return schemeBearer }
func (BasicCredential) scheme() string  { return schemeBasic }
func (CookieCredential) scheme() string { return schemeCookie }

const (
	schemeBearer = "bearer"
	schemeBasic  = "basic"
	schemeCookie = "cookie"
	schemeNone   = "none"
	schemeOther  = "other"
)

// ParseAuthorization splits an Authorization header value on its first space.
// Only the Bearer and Basic schemes are recognised.
func ParseAuthorization(header string) (Credential, error) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	value = strings.TrimSpace(value)

	if !ok || value == "" {
		return nil, fmt.Errorf("%w: missing credential after scheme", ErrCredentialMalformed)
	}

	switch {
	case strings.EqualFold(scheme, "Bearer"):
		return BearerCredential{Token: value}, nil
	case strings.EqualFold(scheme, "Basic"):
		return parseBasic(value)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrCredentialMalformed, scheme)
	}
}

func parseBasic(value string) (BasicCredential, error) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(value)
		if err != nil {
			return BasicCredential{}, fmt.Errorf("%w: basic credential is not base64", ErrCredentialMalformed)
		}
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return BasicCredential{}, fmt.Errorf("%w: basic credential without colon", ErrCredentialMalformed)
	}

	return BasicCredential{Username: username, Password: password}, nil
}

// ValidationContext carries provider specific validation data. It is one of
// NoFactors, DirectoryFactors or SSOFactors.
type ValidationContext interface {
	validationContext()
}

// NoFactors is used when the caller has nothing to add.
type NoFactors struct{}

// DirectoryFactors carries the client address of the request.
type DirectoryFactors struct {
	RemoteAddress string
}

// SSOFactors carries explicit Crowd validation factors.
type SSOFactors struct {
	Factors []crowd.Factor
}

func (NoFactors) validationContext()        {}
func (DirectoryFactors) validationContext() {}
func (SSOFactors) validationContext()       {}

// ssoFactors converts any ValidationContext into Crowd validation factors.
func ssoFactors(vc ValidationContext) []crowd.Factor {
	switch v := vc.(type) {
	case SSOFactors:
		return v.Factors
	case DirectoryFactors:
		return crowd.RemoteAddress(v.RemoteAddress)
	default:
		return nil
	}
}
