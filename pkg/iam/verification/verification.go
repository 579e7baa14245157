// Package verification is the one-time code engine behind email verification,
// OTP sign-in, password reset, project transfer, passkey challenges and MFA
// attempts.
package verification

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Type identifies the flow that owns a code. The set is closed.
type Type string

const (
	TypeContactChannel        Type = "contact_channel_verification"
	TypeOneTimePassword       Type = "one_time_password"
	TypePasswordReset         Type = "password_reset"
	TypeProjectTransfer       Type = "project_transfer"
	TypePasskeyRegistration   Type = "passkey_registration_challenge"
	TypePasskeyAuthentication Type = "passkey_authentication_challenge"
	TypeMFASignIn             Type = "mfa_sign_in"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeContactChannel, TypeOneTimePassword, TypePasswordReset, TypeProjectTransfer,
		TypePasskeyRegistration, TypePasskeyAuthentication, TypeMFASignIn:
		return true
	}
	return false
}

// Code is a single-use, expiring secret delivered out of band. Data and Method
// hold the JSON payloads of the owning flow.
type Code struct {
	ID        string          `json:"id"`
	TenantID  kernel.TenantID `json:"project_id"`
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Method    json.RawMessage `json:"method"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	UsedAt    *time.Time      `json:"used_at,omitempty"`
}

// IsExpired reports whether the code is past its expiry. A code expires at
// ExpiresAt exactly.
func (c *Code) IsExpired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

func (c *Code) IsUsed() bool { return c.UsedAt != nil }

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("VERIFICATION")

var (
	CodeNotFound      = ErrRegistry.Register("CODE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Verification code not found")
	CodeExpired       = ErrRegistry.Register("CODE_EXPIRED", errx.TypeValidation, http.StatusBadRequest, "Verification code has expired")
	CodeAlreadyUsed   = ErrRegistry.Register("CODE_ALREADY_USED", errx.TypeConflict, http.StatusConflict, "Verification code has already been used")
	CodeMethodInvalid = ErrRegistry.Register("METHOD_INVALID", errx.TypeValidation, http.StatusBadRequest, "Verification method is invalid for this code")
	CodeInvalidBody   = ErrRegistry.Register("INVALID_BODY", errx.TypeValidation, http.StatusBadRequest, "Invalid request body")
)

func ErrCodeNotFound() *errx.Error    { return ErrRegistry.New(CodeNotFound) }
func ErrCodeExpired() *errx.Error     { return ErrRegistry.New(CodeExpired) }
func ErrCodeAlreadyUsed() *errx.Error { return ErrRegistry.New(CodeAlreadyUsed) }
func ErrMethodInvalid() *errx.Error   { return ErrRegistry.New(CodeMethodInvalid) }
func ErrInvalidBody() *errx.Error     { return ErrRegistry.New(CodeInvalidBody) }
