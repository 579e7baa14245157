package auth

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef-signing"
	testEncKey = "0123456789abcdef0123456789abcdef"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T, encKey string) *JWTCodec {
	t.Helper()
	c, err := NewJWTCodec(testSecret, encKey, "gatekeeper-test")
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }
	return c
}

func sampleClaims() AccessTokenClaims {
	return AccessTokenClaims{
		TenantID:  kernel.NewTenantID("proj-1"),
		UserID:    kernel.NewUserID("3f0c1a52-8d7e-4b8a-9c61-1b2d3e4f5a6b"),
		IssuedAt:  testNow,
		ExpiresAt: testNow.Add(time.Hour),
		Extra:     map[string]any{"role": "member", "mfa": true},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, encKey := range []string{"", testEncKey} {
		name := "signed"
		if encKey != "" {
			name = "encrypted"
		}
		t.Run(name, func(t *testing.T) {
			c := newTestCodec(t, encKey)
			claims := sampleClaims()

			token, err := c.Encode(claims)
			require.NoError(t, err)

			got, err := c.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, claims, *got)
		})
	}
}

func TestCodecExtraClaimsMustBeJSONNative(t *testing.T) {
	c := newTestCodec(t, "")

	claims := sampleClaims()
	claims.Extra = map[string]any{
		"level":  2.0,
		"groups": []any{"admins", 1.5, nil},
		"org":    map[string]any{"id": "org-1", "seats": 10.0},
	}
	token, err := c.Encode(claims)
	require.NoError(t, err)
	got, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, claims, *got)

	for name, v := range map[string]any{
		"int":        2,
		"int in map": map[string]any{"seats": 10},
		"typed list": []string{"admins"},
	} {
		t.Run(name, func(t *testing.T) {
			claims := sampleClaims()
			claims.Extra = map[string]any{"v": v}
			_, err := c.Encode(claims)
			assert.True(t, errx.HasCode(err, CodeTokenGenerationFailed), "got %v", err)
		})
	}
}

func TestCodecRoundTripWithoutExtras(t *testing.T) {
	c := newTestCodec(t, "")
	claims := sampleClaims()
	claims.Extra = nil

	token, err := c.Encode(claims)
	require.NoError(t, err)
	got, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, claims, *got)
}

func TestDecodeRejectsFlippedSignature(t *testing.T) {
	c := newTestCodec(t, "")
	token, err := c.Encode(sampleClaims())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := range sig {
		flipped := append([]byte(nil), sig...)
		flipped[i] ^= 0x01
		tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(flipped)

		_, err := c.Decode(tampered)
		require.Error(t, err, "byte %d", i)
		assert.True(t, errx.HasCode(err, CodeTokenDecodeFailed))
		assert.Equal(t, ReasonBadSignature, ReasonOf(err))
	}
}

func TestDecodeRejectsTamperedCiphertext(t *testing.T) {
	c := newTestCodec(t, testEncKey)
	token, err := c.Encode(sampleClaims())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 5)
	ct, err := base64.RawURLEncoding.DecodeString(parts[3])
	require.NoError(t, err)
	ct[0] ^= 0x01
	parts[3] = base64.RawURLEncoding.EncodeToString(ct)

	_, err = c.Decode(strings.Join(parts, "."))
	require.Error(t, err)
	assert.Equal(t, ReasonBadSignature, ReasonOf(err))
}

func TestDecodeFailureReasons(t *testing.T) {
	c := newTestCodec(t, "")
	valid, err := c.Encode(sampleClaims())
	require.NoError(t, err)

	other, err := NewJWTCodec("another-secret-another-secret-xx", "", "gatekeeper-test")
	require.NoError(t, err)
	other.now = c.now
	foreign, err := other.Encode(sampleClaims())
	require.NoError(t, err)

	otherIssuer, err := NewJWTCodec(testSecret, "", "someone-else")
	require.NoError(t, err)
	otherIssuer.now = c.now
	wrongIssuer, err := otherIssuer.Encode(sampleClaims())
	require.NoError(t, err)

	tests := []struct {
		name   string
		codec  *JWTCodec
		token  string
		reason DecodeReason
	}{
		{"garbage", c, "not-a-token", ReasonMalformed},
		{"empty", c, "", ReasonMalformed},
		{"wrong secret", c, foreign, ReasonBadSignature},
		{"wrong issuer", c, wrongIssuer, ReasonInvalidClaims},
		{"plain token to encrypting codec", newTestCodec(t, testEncKey), valid, ReasonMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Decode(tt.token)
			require.Error(t, err)
			assert.True(t, errx.HasCode(err, CodeTokenDecodeFailed))
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestDecodeExpired(t *testing.T) {
	c := newTestCodec(t, "")
	token, err := c.Encode(sampleClaims())
	require.NoError(t, err)

	c.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	_, err = c.Decode(token)
	require.Error(t, err)
	assert.Equal(t, ReasonExpired, ReasonOf(err))

	pub := errx.Public(err)
	assert.Equal(t, CodeTokenDecodeFailed.Code, pub.Code)
	assert.Equal(t, 401, pub.HTTPStatus)
}

func TestEncodeRequiresExpiry(t *testing.T) {
	c := newTestCodec(t, "")
	claims := sampleClaims()
	claims.ExpiresAt = time.Time{}
	_, err := c.Encode(claims)
	assert.True(t, errx.HasCode(err, CodeTokenGenerationFailed))
}

func TestNewJWTCodecValidatesKeys(t *testing.T) {
	_, err := NewJWTCodec("", "", "")
	assert.Error(t, err)
	_, err = NewJWTCodec(testSecret, "too-short", "")
	assert.Error(t, err)
}

func TestCodecConcurrentUse(t *testing.T) {
	c := newTestCodec(t, testEncKey)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := c.Encode(sampleClaims())
			if !assert.NoError(t, err) {
				return
			}
			_, err = c.Decode(token)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
