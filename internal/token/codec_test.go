package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/token"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newCodec(t *testing.T, c *clock, opts ...token.Option) *token.Codec {
	t.Helper()

	opts = append(opts, token.WithTimeFunc(c.Now))

	codec, err := token.NewCodec(testKey, "authgate-test", opts...)
	require.NoError(t, err)

	return codec
}

func identity() token.Identity {
	return token.Identity{
		UserID:       "42",
		Username:     "tstark",
		Source:       "local",
		SessionToken: "session-1",
		Role:         "USER",
	}
}

func TestIssueAndVerify(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c)

	raw, err := codec.Issue(identity(), time.Hour)
	require.NoError(t, err)
	assert.True(t, token.MayBeToken(raw))

	claims, err := codec.Verify(raw)
	require.NoError(t, err)

	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "tstark", claims.Username)
	assert.Equal(t, "local", claims.Source)
	assert.Equal(t, "session-1", claims.SessionToken)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, "authgate-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyExpiredInsideLeeway(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c)

	raw, err := codec.Issue(identity(), time.Minute)
	require.NoError(t, err)

	c.t = c.t.Add(10 * time.Minute)

	// the leeway keeps the token parseable ...
	claims, err := codec.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)

	// ... but it is not usable anymore
	_, err = codec.Verify(raw)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestVerifyExpiredOutsideLeeway(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c, token.WithLeeway(time.Second))

	raw, err := codec.Issue(identity(), time.Minute)
	require.NoError(t, err)

	c.t = c.t.Add(2 * time.Hour)

	_, err = codec.Parse(raw)
	require.ErrorIs(t, err, token.ErrExpired)

	_, err = codec.Verify(raw)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestVerifyExactExpiry(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c)

	raw, err := codec.Issue(identity(), time.Minute)
	require.NoError(t, err)

	c.t = c.t.Add(time.Minute)

	_, err = codec.Verify(raw)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestVerifyRejects(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c)

	raw, err := codec.Issue(identity(), time.Hour)
	require.NoError(t, err)

	otherKey, err := token.NewCodec([]byte("ffffffffffffffffffffffffffffffff"), "authgate-test", token.WithTimeFunc(c.Now))
	require.NoError(t, err)

	otherIssuer, err := token.NewCodec(testKey, "someone-else", token.WithTimeFunc(c.Now))
	require.NoError(t, err)

	foreignKey, err := otherKey.Issue(identity(), time.Hour)
	require.NoError(t, err)

	foreignIssuer, err := otherIssuer.Issue(identity(), time.Hour)
	require.NoError(t, err)

	noSubject := identity()
	noSubject.UserID = ""
	missingSubject, err := codec.Issue(noSubject, time.Hour)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer:    "authgate-test",
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
	}).SignedString(testKey)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", token.ErrMalformed},
		{"null literal", "null", token.ErrMalformed},
		{"two parts", "abc.def", token.ErrMalformed},
		{"garbage three parts", "abc.def.ghi", token.ErrMalformed},
		{"flipped signature", flip(raw), token.ErrSignature},
		{"other key", foreignKey, token.ErrSignature},
		{"other issuer", foreignIssuer, token.ErrIssuer},
		{"other algorithm", hs512, token.ErrSignature},
		{"missing subject", missingSubject, token.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := codec.Verify(tt.raw)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, claims)
		})
	}
}

func TestVerifyRejectsNonCanonicalSignature(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c)

	raw, err := codec.Issue(identity(), time.Hour)
	require.NoError(t, err)

	// the last character of a 32 byte signature carries two padding bits,
	// flipping the lowest one keeps the decoded bytes
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	last := strings.IndexByte(alphabet, raw[len(raw)-1])
	require.GreaterOrEqual(t, last, 0)

	tampered := raw[:len(raw)-1] + string(alphabet[last^1])
	require.NotEqual(t, raw, tampered)

	_, err = codec.Verify(tampered)
	require.ErrorIs(t, err, token.ErrMalformed)

	_, err = codec.Verify(raw)
	require.NoError(t, err)
}

func TestIssuePair(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c)

	request, refresh, err := codec.IssuePair(identity(), token.DevAge)
	require.NoError(t, err)
	assert.NotEqual(t, request, refresh)

	rc, err := codec.Verify(request)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(time.Minute).Unix(), rc.ExpiresAt.Unix())

	fc, err := codec.Verify(refresh)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(5*time.Minute).Unix(), fc.ExpiresAt.Unix())
}

func TestNewCodec(t *testing.T) {
	_, err := token.NewCodec([]byte("short"), "")
	require.ErrorIs(t, err, token.ErrWeakKey)

	codec, err := token.NewCodec(nil, "")
	require.NoError(t, err)
	assert.Equal(t, token.DefaultIssuer, codec.Issuer())

	raw, err := codec.Issue(identity(), time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(raw)
	require.NoError(t, err)
}

func TestMayBeToken(t *testing.T) {
	tests := map[string]bool{
		"":            false,
		"   ":         false,
		"null":        false,
		"a.b":         false,
		"a.b.c.d":     false,
		"a..c":        false,
		"a. .c":       false,
		"a.b.c":       true,
		"eyJ.eyJ.sig": true,
	}

	for in, want := range tests {
		assert.Equal(t, want, token.MayBeToken(in), "input %q", in)
	}
}

func TestFingerprint(t *testing.T) {
	a := token.Fingerprint("a.b.c")
	assert.Len(t, a, 64)
	assert.Equal(t, a, token.Fingerprint("a.b.c"))
	assert.NotEqual(t, a, token.Fingerprint("a.b.d"))
}

// flip changes one character in the middle of the signature segment.
func flip(raw string) string {
	i := strings.LastIndex(raw, ".")
	pos := i + (len(raw)-i)/2

	b := []byte(raw)
	if b[pos] == 'A' {
		b[pos] = 'B'
	} else {
		b[pos] = 'A'
	}

	return string(b)
}
