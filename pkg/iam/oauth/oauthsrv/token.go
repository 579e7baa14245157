package oauthsrv

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// TokenRequest is the form of the token endpoint.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token
	RefreshToken string
}

// Token exchanges an authorization code or a refresh token for service tokens.
func (s *Service) Token(ctx context.Context, req TokenRequest) (resp *oauth.TokenResponse, err error) {
	tenantID := kernel.NewTenantID(req.ClientID)
	defer func() { s.record(ctx, StageToken, tenantID, err) }()

	if err := s.authenticateClient(ctx, tenantID, req.ClientSecret); err != nil {
		return nil, err
	}

	switch req.GrantType {
	case oauth.GrantAuthorizationCode:
		return s.exchangeCode(ctx, tenantID, req)
	case oauth.GrantRefreshToken:
		pair, err := s.deps.Tokens.RefreshAccessToken(ctx, tenantID, req.RefreshToken)
		if err != nil {
			return nil, err
		}
		return &oauth.TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    pair.ExpiresIn,
			Scope:        oauth.ScopeLegacy,
		}, nil
	default:
		return nil, oauth.ErrUnsupportedGrantType().WithDetail("grant_type", req.GrantType)
	}
}

// authenticateClient maps every client failure to INVALID_CLIENT.
func (s *Service) authenticateClient(ctx context.Context, tenantID kernel.TenantID, secret string) error {
	if tenantID.IsEmpty() || secret == "" {
		return oauth.ErrInvalidClient()
	}
	if _, err := s.deps.Projects.FindByID(ctx, tenantID); err != nil {
		if errx.HasCode(err, project.CodeNotFound) {
			return oauth.ErrInvalidClient().WithCause(err)
		}
		return err
	}
	if _, err := s.deps.Keys.Check(ctx, tenantID, apikey.Selector{PublishableClientKey: secret}); err != nil {
		if errx.HasCode(err, apikey.CodeNotFound) {
			return oauth.ErrInvalidClient().WithCause(err)
		}
		return err
	}
	return nil
}

func (s *Service) exchangeCode(ctx context.Context, tenantID kernel.TenantID, req TokenRequest) (*oauth.TokenResponse, error) {
	if req.Code == "" {
		return nil, oauth.ErrInvalidRequest("code is required")
	}
	code, err := s.deps.Codes.Take(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	switch {
	case code.IsExpired(s.deps.Clock()):
		return nil, oauth.ErrInvalidGrant().WithDetail("reason", "expired")
	case code.TenantID != tenantID:
		return nil, oauth.ErrInvalidGrant().WithDetail("reason", "client_mismatch")
	case oauth.StripFragment(req.RedirectURI) != code.RedirectURI:
		return nil, oauth.ErrInvalidGrant().WithDetail("reason", "redirect_uri_mismatch")
	case !code.VerifyPKCE(req.CodeVerifier):
		return nil, oauth.ErrInvalidGrant().WithDetail("reason", "code_verifier_mismatch")
	}

	pair, err := s.deps.Tokens.CreateAuthTokens(ctx, tenantID, code.UserID)
	if err != nil {
		return nil, err
	}
	scope := code.Scope
	if scope == "" {
		scope = oauth.ScopeLegacy
	}
	return &oauth.TokenResponse{
		AccessToken:              pair.AccessToken,
		RefreshToken:             pair.RefreshToken,
		TokenType:                "Bearer",
		ExpiresIn:                pair.ExpiresIn,
		Scope:                    scope,
		IsNewUser:                code.NewUser,
		AfterCallbackRedirectURL: code.AfterCallbackRedirectURL,
	}, nil
}
