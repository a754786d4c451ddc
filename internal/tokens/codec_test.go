package tokens

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestCodec(t *testing.T, clk *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(CodecConfig{Secret: testSecret, Issuer: "authd-test", Now: clk.Now})
	require.NoError(t, err)
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	clk := newClock()
	c := newTestCodec(t, clk)

	tok, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindRefresh, TokenID: "t-1"}, time.Hour)
	require.NoError(t, err)
	assert.Len(t, strings.Split(tok, "."), 3)

	cl, err := c.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", cl.Subject)
	assert.Equal(t, domainauth.KindRefresh, cl.Kind)
	assert.Equal(t, "t-1", cl.TokenID)
	assert.True(t, cl.IssuedAt.Equal(clk.Now()))
	assert.True(t, cl.ExpiresAt.Equal(clk.Now().Add(time.Hour)))
}

func TestCodec_SignRejectsBadInput(t *testing.T) {
	c := newTestCodec(t, newClock())

	_, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindAccess}, 0)
	assert.Error(t, err)
	_, err = c.Sign(domainauth.Claims{Kind: domainauth.KindAccess}, time.Minute)
	assert.Error(t, err)
}

func TestNewCodec_ShortSecret(t *testing.T) {
	_, err := NewCodec(CodecConfig{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestCodec_SecretIsCopied(t *testing.T) {
	clk := newClock()
	secret := append([]byte(nil), testSecret...)
	c, err := NewCodec(CodecConfig{Secret: secret, Now: clk.Now})
	require.NoError(t, err)

	tok, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindAccess}, time.Minute)
	require.NoError(t, err)
	secret[0] ^= 0xff

	_, err = c.Verify(tok)
	assert.NoError(t, err)
}

func TestCodec_Expiry(t *testing.T) {
	clk := newClock()
	c := newTestCodec(t, clk)

	tok, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindAccess}, 15*time.Minute)
	require.NoError(t, err)

	clk.Advance(15*time.Minute - time.Second)
	_, err = c.Verify(tok)
	assert.NoError(t, err)

	clk.Advance(2 * time.Second)
	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, domainauth.ErrExpired)

	// signature-only check still accepts it
	cl, err := c.VerifySignature(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", cl.Subject)
}

func TestCodec_Leeway(t *testing.T) {
	clk := newClock()
	c, err := NewCodec(CodecConfig{Secret: testSecret, Leeway: 30 * time.Second, Now: clk.Now})
	require.NoError(t, err)

	tok, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindAccess}, time.Minute)
	require.NoError(t, err)

	clk.Advance(time.Minute + 10*time.Second)
	_, err = c.Verify(tok)
	assert.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, domainauth.ErrExpired)
}

func TestCodec_TamperedSignature(t *testing.T) {
	c := newTestCodec(t, newClock())
	tok, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindAccess}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	sig := []byte(parts[2])
	mid := len(sig) / 2
	if sig[mid] == 'A' {
		sig[mid] = 'B'
	} else {
		sig[mid] = 'A'
	}
	bad := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Verify(bad)
	assert.ErrorIs(t, err, domainauth.ErrInvalidSignature)
	assert.ErrorIs(t, err, domainauth.ErrInvalid)
}

func TestCodec_TamperedPayload(t *testing.T) {
	c := newTestCodec(t, newClock())
	tok, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindAccess}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload["sub"] = "u2"
	raw, err = json.Marshal(payload)
	require.NoError(t, err)

	forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(raw) + "." + parts[2]
	_, err = c.Verify(forged)
	assert.ErrorIs(t, err, domainauth.ErrInvalidSignature)
}

func TestCodec_ForeignSecret(t *testing.T) {
	clk := newClock()
	other, err := NewCodec(CodecConfig{Secret: []byte("ffffffffffffffffffffffffffffffff"), Issuer: "authd-test", Now: clk.Now})
	require.NoError(t, err)
	tok, err := other.Sign(domainauth.Claims{Subject: "u1", Kind: domainauth.KindAccess}, time.Hour)
	require.NoError(t, err)

	_, err = newTestCodec(t, clk).Verify(tok)
	assert.ErrorIs(t, err, domainauth.ErrInvalidSignature)
}

func TestCodec_NoneAlgorithm(t *testing.T) {
	clk := newClock()
	claims := jwtClaims{
		Kind: domainauth.KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "authd-test",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestCodec(t, clk).Verify(tok)
	assert.ErrorIs(t, err, domainauth.ErrInvalid)
}

func TestCodec_Malformed(t *testing.T) {
	c := newTestCodec(t, newClock())

	for _, tok := range []string{"", "abc", "a.b", "a.b.c", "e30.e30", "!!!.###.$$$"} {
		_, err := c.Verify(tok)
		assert.ErrorIs(t, err, domainauth.ErrMalformed, "token %q", tok)
	}
}

func TestCodec_UnknownKind(t *testing.T) {
	c := newTestCodec(t, newClock())
	tok, err := c.Sign(domainauth.Claims{Subject: "u1", Kind: "session"}, time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, domainauth.ErrMalformed)
}
