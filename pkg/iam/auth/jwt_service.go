package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// JWTCodec signs access tokens with HS256 and, when an encryption key is
// configured, wraps the signed token in a compact JWE (dir + A256GCM).
// It holds no mutable state and is safe for concurrent use.
type JWTCodec struct {
	secret    []byte
	encKey    []byte
	issuer    string
	encrypter jose.Encrypter
	now       func() time.Time
}

// NewJWTCodec crea el codec. encryptionKey must be empty or exactly 32 bytes.
func NewJWTCodec(secret, encryptionKey, issuer string) (*JWTCodec, error) {
	if len(secret) == 0 {
		return nil, ErrTokenGenerationFailed().WithDetail("reason", "empty signing secret")
	}
	if issuer == "" {
		issuer = "gatekeeper"
	}
	c := &JWTCodec{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	if encryptionKey != "" {
		if len(encryptionKey) != 32 {
			return nil, ErrTokenGenerationFailed().WithDetail("reason", "encryption key must be 32 bytes")
		}
		c.encKey = []byte(encryptionKey)
		enc, err := jose.NewEncrypter(
			jose.A256GCM,
			jose.Recipient{Algorithm: jose.DIRECT, Key: c.encKey},
			(&jose.EncrypterOptions{}).WithContentType("JWT"),
		)
		if err != nil {
			return nil, ErrTokenGenerationFailed().WithCause(err)
		}
		c.encrypter = enc
	}
	return c, nil
}

// NewJWTCodecFromConfig builds the codec from the auth section.
func NewJWTCodecFromConfig(cfg *config.AuthConfig) (*JWTCodec, error) {
	return NewJWTCodec(cfg.AccessTokenSecret, cfg.AccessTokenEncryptionKey, cfg.Issuer)
}

type jwtClaims struct {
	ProjectID string         `json:"project_id"`
	Extra     map[string]any `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Encode serializes and signs claims. ExpiresAt is required and Extra may
// only hold JSON-native values.
func (c *JWTCodec) Encode(claims AccessTokenClaims) (string, error) {
	if claims.TenantID.IsEmpty() || claims.UserID.IsEmpty() {
		return "", ErrTokenGenerationFailed().WithDetail("reason", "tenant and user are required")
	}
	for k, v := range claims.Extra {
		if !jsonNative(v) {
			return "", ErrTokenGenerationFailed().
				WithDetail("reason", "extra claims must be JSON-native").
				WithDetail("claim", k).
				WithDetail("go_type", fmt.Sprintf("%T", v))
		}
	}
	if claims.ExpiresAt.IsZero() {
		return "", ErrTokenGenerationFailed().WithDetail("reason", "expiry is required")
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = c.now()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		ProjectID: claims.TenantID.String(),
		Extra:     claims.Extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   claims.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", ErrTokenGenerationFailed().WithCause(err)
	}
	if c.encrypter == nil {
		return signed, nil
	}

	obj, err := c.encrypter.Encrypt([]byte(signed))
	if err != nil {
		return "", ErrTokenGenerationFailed().WithCause(err)
	}
	compact, err := obj.CompactSerialize()
	if err != nil {
		return "", ErrTokenGenerationFailed().WithCause(err)
	}
	return compact, nil
}

// Decode verifies integrity and expiry and returns the claims. Every failure is
// ErrTokenDecodeFailed; ReasonOf tells them apart.
func (c *JWTCodec) Decode(token string) (*AccessTokenClaims, error) {
	signed := token
	if c.encKey != nil {
		obj, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{jose.DIRECT}, []jose.ContentEncryption{jose.A256GCM})
		if err != nil {
			return nil, ErrTokenDecodeFailed(ReasonMalformed, err)
		}
		plain, err := obj.Decrypt(c.encKey)
		if err != nil {
			return nil, ErrTokenDecodeFailed(ReasonBadSignature, err)
		}
		signed = string(plain)
	}

	parsed, err := jwt.ParseWithClaims(signed, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, ErrTokenDecodeFailed(classify(err), err)
	}

	jc, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid || jc.ProjectID == "" || jc.Subject == "" || jc.IssuedAt == nil {
		return nil, ErrTokenDecodeFailed(ReasonInvalidClaims, nil)
	}

	return &AccessTokenClaims{
		TenantID:  kernel.NewTenantID(jc.ProjectID),
		UserID:    kernel.NewUserID(jc.Subject),
		IssuedAt:  jc.IssuedAt.Time.UTC(),
		ExpiresAt: jc.ExpiresAt.Time.UTC(),
		Extra:     jc.Extra,
	}, nil
}

// jsonNative reports whether v decodes from JSON as the same Go value.
func jsonNative(v any) bool {
	switch v := v.(type) {
	case nil, string, float64, bool:
		return true
	case []any:
		for _, item := range v {
			if !jsonNative(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range v {
			if !jsonNative(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func classify(err error) DecodeReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	default:
		return ReasonInvalidClaims
	}
}
