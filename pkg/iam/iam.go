package iam

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized       = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized")
	CodeProjectIDRequired  = ErrRegistry.Register("PROJECT_ID_REQUIRED", errx.TypeValidation, http.StatusBadRequest, "The X-Project-Id header is required")
	CodeInsufficientAccess = ErrRegistry.Register("INSUFFICIENT_ACCESS_TYPE", errx.TypeForbidden, http.StatusForbidden, "This endpoint requires a more privileged API key")
	CodeUserRequired       = ErrRegistry.Register("USER_AUTHENTICATION_REQUIRED", errx.TypeAuthorization, http.StatusUnauthorized, "An access token is required for this endpoint")
	CodeProjectMismatch    = ErrRegistry.Register("PROJECT_MISMATCH", errx.TypeForbidden, http.StatusForbidden, "The access token belongs to a different project")
	CodeSignUpNotEnabled   = ErrRegistry.Register("SIGN_UP_NOT_ENABLED", errx.TypeBusiness, http.StatusBadRequest, "Sign up is not enabled for this project")
	CodeMethodDisabled     = ErrRegistry.Register("AUTH_METHOD_DISABLED", errx.TypeBusiness, http.StatusBadRequest, "This authentication method is disabled for this project")

	CodePasskeyRegistrationFailed   = ErrRegistry.Register("PASSKEY_REGISTRATION_FAILED", errx.TypeValidation, http.StatusBadRequest, "Passkey registration failed")
	CodePasskeyAuthenticationFailed = ErrRegistry.Register("PASSKEY_AUTHENTICATION_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Passkey authentication failed")
	CodeInvalidTOTP                 = ErrRegistry.Register("INVALID_TOTP_CODE", errx.TypeValidation, http.StatusBadRequest, "The TOTP code is invalid")
	CodeMFARequired                 = ErrRegistry.Register("MULTI_FACTOR_AUTHENTICATION_REQUIRED", errx.TypeAuthorization, http.StatusBadRequest, "Multi-factor authentication is required to finish signing in")
)

func ErrUnauthorized() *errx.Error       { return ErrRegistry.New(CodeUnauthorized) }
func ErrProjectIDRequired() *errx.Error  { return ErrRegistry.New(CodeProjectIDRequired) }
func ErrInsufficientAccess() *errx.Error { return ErrRegistry.New(CodeInsufficientAccess) }
func ErrUserRequired() *errx.Error       { return ErrRegistry.New(CodeUserRequired) }
func ErrProjectMismatch() *errx.Error    { return ErrRegistry.New(CodeProjectMismatch) }
func ErrSignUpNotEnabled() *errx.Error   { return ErrRegistry.New(CodeSignUpNotEnabled) }

func ErrMethodDisabled(method string) *errx.Error {
	return ErrRegistry.New(CodeMethodDisabled).WithDetail("method", method)
}

func ErrPasskeyRegistrationFailed(reason string) *errx.Error {
	return ErrRegistry.New(CodePasskeyRegistrationFailed).WithDetail("reason", reason)
}

func ErrPasskeyAuthenticationFailed(reason string) *errx.Error {
	return ErrRegistry.New(CodePasskeyAuthenticationFailed).WithDetail("reason", reason)
}

func ErrInvalidTOTP() *errx.Error { return ErrRegistry.New(CodeInvalidTOTP) }

// ErrMFARequired hands the caller the attempt code that the second factor
// redeems.
func ErrMFARequired(attemptCode string) *errx.Error {
	return ErrRegistry.New(CodeMFARequired).WithDetail("attempt_code", attemptCode)
}

// ============================================================================
// Secrets
// ============================================================================

// RandomString returns n random bytes encoded as unpadded base64url.
func RandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to read random bytes", errx.TypeInternal)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RandomCode returns n random bytes as lowercase unpadded base32, so any prefix
// of the result can be typed back case-insensitively.
func RandomCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to read random bytes", errx.TypeInternal)
	}
	return strings.ToLower(codeEncoding.EncodeToString(b)), nil
}

// RandomHex returns n random bytes hex encoded (lowercase, 2n characters).
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to read random bytes", errx.TypeInternal)
	}
	return hex.EncodeToString(b), nil
}

// HashSecret is the SHA-256 hex digest under which secrets are stored and looked up.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// LastFour returns the only part of a secret that may be shown again.
func LastFour(secret string) string {
	if len(secret) <= 4 {
		return secret
	}
	return secret[len(secret)-4:]
}
