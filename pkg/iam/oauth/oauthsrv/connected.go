package oauthsrv

import (
	"context"
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/google/uuid"
)

type ConnectedAccessToken struct {
	AccessToken string `json:"access_token"`
}

// ConnectedAccessToken returns a fresh provider access token for the user's
// connected account, refreshed from a stored refresh token granted scope.
func (s *Service) ConnectedAccessToken(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, providerID kernel.ProviderID, scope string) (res *ConnectedAccessToken, err error) {
	defer func() { s.record(ctx, StageConnected, tenantID, err) }()

	p, err := s.deps.Projects.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg, ok := p.EnabledProvider(providerID)
	if !ok {
		return nil, oauth.ErrProviderNotFoundOrDisabled(providerID)
	}
	if cfg.IsShared() {
		return nil, oauth.ErrAccessTokenNotAvailableWithSharedKeys()
	}

	acct, err := s.deps.Accounts.FindAccountByUser(ctx, tenantID, userID, providerID)
	if err != nil {
		if errx.HasCode(err, user.CodeAccountNotFound) {
			return nil, oauth.ErrConnectionNotConnectedToUser()
		}
		return nil, err
	}

	stored, err := s.deps.Accounts.FindRefreshTokens(ctx, tenantID, providerID, acct.ProviderAccountID)
	if err != nil {
		return nil, err
	}
	required := strings.Fields(scope)
	var candidates []*user.OAuthToken
	for _, t := range stored {
		if t.Covers(required) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, oauth.ErrConnectionMissingRequiredScope(scope)
	}

	prov, err := s.deps.Providers.Build(ctx, *cfg)
	if err != nil {
		return nil, err
	}

	// the newest token the provider still honours wins
	for _, t := range candidates {
		set, err := prov.AccessToken(ctx, provider.AccessTokenOptions{RefreshToken: t.RefreshToken, Scope: scope})
		if errx.HasCode(err, provider.CodeInvalidAuthorizationCode) {
			logx.WithContext(ctx).WithFields(logx.Fields{
				"tenant_id":   tenantID.String(),
				"provider_id": providerID.String(),
				"token_id":    t.ID,
			}).Info("stored provider refresh token was rejected")
			continue
		}
		if err != nil {
			return nil, err
		}

		if set.RefreshToken != "" {
			if err := s.deps.Accounts.UpdateRefreshToken(ctx, t.ID, set.RefreshToken); err != nil {
				return nil, err
			}
		}
		if err := s.deps.Accounts.SaveAccessToken(ctx, &user.OAuthAccessToken{
			ID:                uuid.NewString(),
			TenantID:          tenantID,
			ProviderID:        providerID,
			ProviderAccountID: acct.ProviderAccountID,
			AccessToken:       set.AccessToken,
			Scopes:            t.Scopes,
			ExpiresAt:         set.ExpiresAt,
			CreatedAt:         s.deps.Clock(),
		}); err != nil {
			return nil, err
		}
		return &ConnectedAccessToken{AccessToken: set.AccessToken}, nil
	}
	return nil, oauth.ErrConnectionMissingRequiredScope(scope)
}
