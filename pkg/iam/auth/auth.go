package auth

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// ============================================================================
// Token Types
// ============================================================================

// AccessTokenClaims are the identity claims carried by an access token.
// Times have second precision.
type AccessTokenClaims struct {
	TenantID  kernel.TenantID `json:"project_id"`
	UserID    kernel.UserID   `json:"user_id"`
	IssuedAt  time.Time       `json:"iat"`
	ExpiresAt time.Time       `json:"exp"`
	// Extra holds extension claims. Values must be JSON-native (string,
	// float64, bool, nil, []any, map[string]any) so they decode unchanged;
	// Encode rejects anything else.
	Extra map[string]any `json:"extra,omitempty"`
}

// RefreshToken is an opaque long-lived token. Only its hash is stored.
type RefreshToken struct {
	TokenHash string
	TenantID  kernel.TenantID
	UserID    kernel.UserID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsValid checks the refresh token has not expired
func (r *RefreshToken) IsValid(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// TokenPair is what a successful sign-in returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ============================================================================
// Decode failures
// ============================================================================

// DecodeReason says why a token failed to decode. It is only logged.
type DecodeReason string

const (
	ReasonBadSignature  DecodeReason = "bad_signature"
	ReasonMalformed     DecodeReason = "malformed"
	ReasonExpired       DecodeReason = "expired"
	ReasonInvalidClaims DecodeReason = "invalid_claims"
)

// DecodeError is the cause attached to every ErrTokenDecodeFailed.
type DecodeError struct {
	Reason DecodeReason
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return string(e.Reason) + ": " + e.Err.Error()
	}
	return string(e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ReasonOf extracts the internal decode reason from err, or "".
func ReasonOf(err error) DecodeReason {
	var de *DecodeError
	if errx.As(err, &de) {
		return de.Reason
	}
	return ""
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeTokenDecodeFailed     = ErrRegistry.Register("TOKEN_DECODE_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Access token is invalid or expired")
	CodeInvalidRefreshToken   = ErrRegistry.Register("INVALID_REFRESH_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid refresh token")
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeInvalidAuthHeader     = ErrRegistry.Register("INVALID_AUTHORIZATION_HEADER", errx.TypeValidation, http.StatusBadRequest, "Authorization header must be '<scheme> <token>'")
)

// ErrTokenDecodeFailed is the only decode error callers see; the reason stays in the cause.
func ErrTokenDecodeFailed(reason DecodeReason, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeTokenDecodeFailed, &DecodeError{Reason: reason, Err: cause})
}

func ErrInvalidRefreshToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidRefreshToken)
}

func ErrTokenGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenGenerationFailed)
}

func ErrInvalidAuthHeader() *errx.Error {
	return ErrRegistry.New(CodeInvalidAuthHeader)
}
