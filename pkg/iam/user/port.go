package user

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

type Repository interface {
	// FindByID returns ErrNotFound when no user matches.
	FindByID(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID) (*User, error)
	// FindByEmail matches the normalized primary email. Returns ErrNotFound.
	FindByEmail(ctx context.Context, tenantID kernel.TenantID, email string) (*User, error)
	// Create returns ErrEmailAlreadyExists on a duplicate primary email.
	Create(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID) error
	// UpdateTOTPSecret sets the base32 TOTP secret; an empty secret turns MFA off.
	UpdateTOTPSecret(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID, secret string) error
	AddManagedProject(ctx context.Context, id kernel.UserID, projectID kernel.TenantID) error
}

// AccountRepository stores connected provider accounts and their tokens.
type AccountRepository interface {
	// FindAccount returns ErrAccountNotFound when no account matches.
	FindAccount(ctx context.Context, tenantID kernel.TenantID, providerID kernel.ProviderID, providerAccountID string) (*Account, error)
	// FindAccountByUser returns ErrAccountNotFound when the user has no account at providerID.
	FindAccountByUser(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, providerID kernel.ProviderID) (*Account, error)
	// CreateAccount returns ErrAccountConflict when either uniqueness rule is violated.
	CreateAccount(ctx context.Context, a *Account) error
	// CreateUserWithAccount stores a new user together with its first account,
	// atomically. Errors as Repository.Create and CreateAccount; on error
	// neither row exists.
	CreateUserWithAccount(ctx context.Context, u *User, a *Account) error

	SaveRefreshToken(ctx context.Context, t *OAuthToken) error
	// FindRefreshTokens returns the stored refresh tokens of an account, newest first.
	FindRefreshTokens(ctx context.Context, tenantID kernel.TenantID, providerID kernel.ProviderID, providerAccountID string) ([]*OAuthToken, error)
	UpdateRefreshToken(ctx context.Context, id string, refreshToken string) error
	SaveAccessToken(ctx context.Context, t *OAuthAccessToken) error
}

type PasskeyRepository interface {
	// SavePasskey stores p as the only passkey of its user, replacing an older
	// one. Returns ErrPasskeyConflict when the credential id belongs to
	// another user of the project.
	SavePasskey(ctx context.Context, p *Passkey) error
	// FindPasskey returns ErrPasskeyNotFound when no passkey has credentialID.
	FindPasskey(ctx context.Context, tenantID kernel.TenantID, credentialID []byte) (*Passkey, error)
	UpdateSignCount(ctx context.Context, tenantID kernel.TenantID, credentialID []byte, signCount uint32) error
}
