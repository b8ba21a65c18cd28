package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultIssuer is used when NewCodec gets an empty issuer.
	DefaultIssuer = "authgate"

	// DefaultLeeway is the clock skew accepted while parsing a token.
	DefaultLeeway = time.Hour

	minKeyLen = 32
)

// AgeProfile holds the lifetimes of a request/refresh token pair.
type AgeProfile struct {
	Request time.Duration
	Refresh time.Duration
}

var (
	// DefaultAge is used in production.
	DefaultAge = AgeProfile{Request: time.Hour, Refresh: 8 * time.Hour}

	// DevAge is a short lived profile for development setups.
	DevAge = AgeProfile{Request: time.Minute, Refresh: 5 * time.Minute}
)

// Identity is the information embedded into a freshly issued token.
type Identity struct {
	UserID       string
	Username     string
	Source       string
	SessionToken string
	Role         string
}

// Claims is the decoded payload of a verified token.
type Claims struct {
	Username     string `json:"username,omitempty"`
	Source       string `json:"source,omitempty"`
	SessionToken string `json:"tkn,omitempty"`
	Role         string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a single HMAC key over a fixed issuer.
type Codec struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) {
		if d >= 0 {
			c.leeway = d
		}
	}
}

// WithTimeFunc replaces time.Now, mainly for tests.
func WithTimeFunc(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a codec. An empty key generates a random process-local key,
// so every token becomes invalid once the process exits.
func NewCodec(key []byte, issuer string, opts ...Option) (*Codec, error) {
	if len(key) == 0 {
		key = make([]byte, minKeyLen)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}

	if len(key) < minKeyLen {
		return nil, ErrWeakKey
	}

	if issuer == "" {
		issuer = DefaultIssuer
	}

	c := &Codec{
		key:    key,
		issuer: issuer,
		leeway: DefaultLeeway,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Issuer returns the issuer string embedded in every token.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Issue signs a new token for id which expires after ttl.
func (c *Codec) Issue(id Identity, ttl time.Duration) (string, error) {
	now := c.now()

	claims := Claims{
		Username:     id.Username,
		Source:       id.Source,
		SessionToken: id.SessionToken,
		Role:         id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// IssuePair signs a request and a refresh token for the same identity.
func (c *Codec) IssuePair(id Identity, age AgeProfile) (request, refresh string, err error) {
	if request, err = c.Issue(id, age.Request); err != nil {
		return "", "", err
	}

	if refresh, err = c.Issue(id, age.Refresh); err != nil {
		return "", "", err
	}

	return request, refresh, nil
}

// Parse checks signature, issuer and structure. Expiry is only checked
// with the configured leeway, use Verify for the strict check.
func (c *Codec) Parse(raw string) (*Claims, error) {
	if !MayBeToken(raw) {
		return nil, ErrMalformed
	}

	claims := new(Claims)

	_, err := jwt.ParseWithClaims(raw, claims,
		func(_ *jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(c.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, mapError(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return claims, nil
}

// Verify parses raw and additionally requires now < expiresAt.
func (c *Codec) Verify(raw string) (*Claims, error) {
	claims, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}

	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	return claims, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignature, err) //nolint:errorlint
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err) //nolint:errorlint
	}
}

// MayBeToken is a cheap structural check for three non-empty dot separated parts.
// It is not a security boundary.
func MayBeToken(s string) bool {
	if strings.TrimSpace(s) == "" || s == "null" {
		return false
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 { //nolint:mnd
		return false
	}

	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}

	return true
}

// Fingerprint returns the hex sha256 of a raw token. Stores and caches key
// on the fingerprint so raw tokens are never persisted.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}
