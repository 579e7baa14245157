package authsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

const refreshTokenBytes = 32

// TokenIssuer creates access/refresh token pairs and refreshes access tokens.
type TokenIssuer struct {
	codec      auth.TokenCodec
	refresh    auth.RefreshTokenRepository
	audit      auth.AuditService
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(codec auth.TokenCodec, refresh auth.RefreshTokenRepository, audit auth.AuditService, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 365 * 24 * time.Hour
	}
	return &TokenIssuer{
		codec:      codec,
		refresh:    refresh,
		audit:      audit,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AccessTokenTTL is the lifetime of every issued access token.
func (s *TokenIssuer) AccessTokenTTL() time.Duration { return s.accessTTL }

// CreateAuthTokens issues a fresh access token and a persisted refresh token.
func (s *TokenIssuer) CreateAuthTokens(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID) (*auth.TokenPair, error) {
	access, err := s.issueAccessToken(tenantID, userID)
	if err != nil {
		return nil, err
	}

	raw, err := iam.RandomString(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.refresh.Save(ctx, &auth.RefreshToken{
		TokenHash: iam.HashSecret(raw),
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}); err != nil {
		return nil, errx.Wrap(err, "failed to save refresh token", errx.TypeInternal)
	}

	return &auth.TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

// RefreshAccessToken exchanges a refresh token of the tenant for a new access
// token. The refresh token itself is not rotated.
func (s *TokenIssuer) RefreshAccessToken(ctx context.Context, tenantID kernel.TenantID, refreshToken string) (*auth.TokenPair, error) {
	if refreshToken == "" {
		return nil, auth.ErrInvalidRefreshToken()
	}
	stored, err := s.refresh.FindByHash(ctx, iam.HashSecret(refreshToken))
	if err != nil {
		return nil, err
	}
	if stored.TenantID != tenantID || !stored.IsValid(s.now()) {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"token_tenant": stored.TenantID.String(),
			"expired":      !stored.IsValid(s.now()),
		}).Warn("auth: refresh token rejected")
		return nil, auth.ErrInvalidRefreshToken()
	}

	access, err := s.issueAccessToken(tenantID, stored.UserID)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.LogTokenRefresh(ctx, tenantID, stored.UserID)
	}
	return &auth.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenIssuer) issueAccessToken(tenantID kernel.TenantID, userID kernel.UserID) (string, error) {
	now := s.now()
	return s.codec.Encode(auth.AccessTokenClaims{
		TenantID:  tenantID,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	})
}
