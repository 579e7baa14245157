package user

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// User es un usuario final dentro de un proyecto.
type User struct {
	ID                   kernel.UserID   `json:"id"`
	TenantID             kernel.TenantID `json:"project_id"`
	DisplayName          string          `json:"display_name,omitempty"`
	PrimaryEmail         string          `json:"primary_email,omitempty"`
	PrimaryEmailVerified bool            `json:"primary_email_verified"`
	ProfileImageURL      string          `json:"profile_image_url,omitempty"`
	PasswordHash         string          `json:"-"`
	TOTPSecret           string          `json:"-"`
	ManagedProjectIDs    []string        `json:"managed_project_ids"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// RequiresTOTP reports whether signing in needs a TOTP second factor.
func (u *User) RequiresTOTP() bool { return u.TOTPSecret != "" }

// WebAuthnHandle is the WebAuthn user handle of the user, its id as UTF-8.
func (u *User) WebAuthnHandle() []byte { return []byte(u.ID.String()) }

// ManagesProject reports whether the user already owns projectID.
func (u *User) ManagesProject(projectID kernel.TenantID) bool {
	return slices.Contains(u.ManagedProjectIDs, projectID.String())
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Account links a user to an identity at an external provider. It is unique on
// (TenantID, ProviderID, ProviderAccountID) and on (TenantID, UserID, ProviderID).
type Account struct {
	TenantID          kernel.TenantID   `json:"project_id"`
	ProviderID        kernel.ProviderID `json:"provider_id"`
	ProviderAccountID string            `json:"provider_account_id"`
	UserID            kernel.UserID     `json:"user_id"`
	Email             string            `json:"email,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Passkey is a WebAuthn credential. A user holds at most one per project and
// registering again replaces it.
type Passkey struct {
	TenantID        kernel.TenantID
	UserID          kernel.UserID
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      []string
	SignCount       uint32
	BackupEligible  bool
	BackupState     bool
	CreatedAt       time.Time
}

// OAuthToken is a provider refresh token together with the scopes it was granted.
type OAuthToken struct {
	ID                string
	TenantID          kernel.TenantID
	ProviderID        kernel.ProviderID
	ProviderAccountID string
	RefreshToken      string
	Scopes            []string
	CreatedAt         time.Time
}

// Covers reports whether every scope in required was granted to the token.
func (t *OAuthToken) Covers(required []string) bool {
	for _, s := range required {
		if !slices.Contains(t.Scopes, s) {
			return false
		}
	}
	return true
}

type OAuthAccessToken struct {
	ID                string
	TenantID          kernel.TenantID
	ProviderID        kernel.ProviderID
	ProviderAccountID string
	AccessToken       string
	Scopes            []string
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeNotFound           = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeEmailAlreadyExists = ErrRegistry.Register("EMAIL_ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "A user with this email already exists")
	CodeAccountNotFound    = ErrRegistry.Register("ACCOUNT_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Connected account not found")
	CodeAccountConflict    = ErrRegistry.Register("ACCOUNT_CONFLICT", errx.TypeConflict, http.StatusConflict, "Connected account already exists")
	CodeInvalidPassword    = ErrRegistry.Register("INVALID_PASSWORD", errx.TypeValidation, http.StatusBadRequest, "Password does not meet the requirements")
	CodePasskeyNotFound    = ErrRegistry.Register("PASSKEY_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Passkey not found")
	CodePasskeyConflict    = ErrRegistry.Register("PASSKEY_CONFLICT", errx.TypeConflict, http.StatusConflict, "Passkey is registered to another user")
)

func ErrNotFound() *errx.Error           { return ErrRegistry.New(CodeNotFound) }
func ErrEmailAlreadyExists() *errx.Error { return ErrRegistry.New(CodeEmailAlreadyExists) }
func ErrAccountNotFound() *errx.Error    { return ErrRegistry.New(CodeAccountNotFound) }
func ErrAccountConflict() *errx.Error    { return ErrRegistry.New(CodeAccountConflict) }
func ErrInvalidPassword() *errx.Error    { return ErrRegistry.New(CodeInvalidPassword) }
func ErrPasskeyNotFound() *errx.Error    { return ErrRegistry.New(CodePasskeyNotFound) }
func ErrPasskeyConflict() *errx.Error    { return ErrRegistry.New(CodePasskeyConflict) }
