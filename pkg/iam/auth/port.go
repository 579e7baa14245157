package auth

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// TokenCodec turns identity claims into bearer tokens and back.
type TokenCodec interface {
	Encode(claims AccessTokenClaims) (string, error)
	Decode(token string) (*AccessTokenClaims, error)
}

// RefreshTokenRepository persists refresh tokens by hash.
type RefreshTokenRepository interface {
	Save(ctx context.Context, token *RefreshToken) error
	// FindByHash returns ErrInvalidRefreshToken when nothing matches.
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
}

// AuditService records authentication events.
type AuditService interface {
	LogSignIn(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, method string)
	LogSignUp(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, method string)
	LogAccountLinked(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, providerID string)
	LogTokenRefresh(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID)
}
