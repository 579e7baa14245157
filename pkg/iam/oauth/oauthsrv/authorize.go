package oauthsrv

import (
	"context"
	"crypto/rand"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"golang.org/x/oauth2"
)

// AuthorizeRequest is the client's authorization request, as received on the
// authorize endpoint.
type AuthorizeRequest struct {
	ProviderID          kernel.ProviderID
	ClientID            string
	ClientSecret        string
	RedirectURI         string
	Scope               string
	State               string
	GrantType           string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
	Type                oauth.FlowType

	// Token is the bearer token of the user to link. Link flows only.
	Token string

	ProviderScope            string
	ErrorRedirectURL         string
	AfterCallbackRedirectURL string
}

// AuthorizeResult tells the caller where to send the browser and which inner
// state the CSRF cookie must carry.
type AuthorizeResult struct {
	Location   string
	InnerState string
}

// Authorize validates the outer request, parks it under a fresh inner state
// and returns the provider's authorization URL. Nothing is stored unless every
// check passed.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (res *AuthorizeResult, err error) {
	tenantID := kernel.NewTenantID(req.ClientID)
	defer func() { s.record(ctx, StageAuthorize, tenantID, err) }()

	t, err := s.establishTrust(ctx, tenantID, req.ClientSecret, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if req.ProviderScope != "" && t.config.IsShared() {
		return nil, oauth.ErrExtraScopeNotAvailableWithSharedKeys()
	}
	if err := oauth.CheckScope(req.Scope); err != nil {
		return nil, err
	}

	outer, err := outerFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := t.project.CheckRedirect(outer.RedirectURI); err != nil {
		return nil, err
	}
	if outer.AfterCallbackRedirectURL != "" {
		if err := t.project.CheckRedirect(outer.AfterCallbackRedirectURL); err != nil {
			return nil, err
		}
	}

	if outer.Type == oauth.FlowLink {
		if req.Token == "" {
			return nil, oauth.ErrInvalidRequest("token is required for link flows")
		}
		claims, err := s.deps.Codec.Decode(req.Token)
		if err != nil {
			return nil, err
		}
		if claims.TenantID != tenantID {
			return nil, oauth.ErrTenantMismatch().
				WithDetail("project_id", tenantID.String())
		}
		outer.ProjectUserID = claims.UserID
	}

	innerState := rand.Text()
	outer.InnerCodeVerifier = oauth2.GenerateVerifier()

	location, err := t.provider.AuthorizationURL(provider.AuthorizationOptions{
		CodeVerifier: outer.InnerCodeVerifier,
		State:        innerState,
		ExtraScope:   outer.ProviderScope,
	})
	if err != nil {
		return nil, err
	}

	outer.ExpiresAt = s.deps.Clock().Add(s.deps.OuterInfoTTL)
	if err := s.deps.Outer.Save(ctx, innerState, outer, s.deps.OuterInfoTTL); err != nil {
		return nil, err
	}
	return &AuthorizeResult{Location: location, InnerState: innerState}, nil
}

// outerFromRequest normalizes the protocol parameters of req.
func outerFromRequest(req AuthorizeRequest) (*oauth.OuterInfo, error) {
	outer := &oauth.OuterInfo{
		TenantID:                 kernel.NewTenantID(req.ClientID),
		ProviderID:               req.ProviderID,
		PublishableClientKey:     req.ClientSecret,
		RedirectURI:              oauth.StripFragment(req.RedirectURI),
		Scope:                    req.Scope,
		State:                    req.State,
		GrantType:                req.GrantType,
		ResponseType:             req.ResponseType,
		CodeChallenge:            req.CodeChallenge,
		CodeChallengeMethod:      req.CodeChallengeMethod,
		Type:                     req.Type,
		ProviderScope:            req.ProviderScope,
		ErrorRedirectURL:         req.ErrorRedirectURL,
		AfterCallbackRedirectURL: req.AfterCallbackRedirectURL,
	}
	if outer.Type == "" {
		outer.Type = oauth.FlowAuthenticate
	}
	if outer.GrantType == "" {
		outer.GrantType = oauth.GrantAuthorizationCode
	}
	if outer.CodeChallengeMethod == "" {
		outer.CodeChallengeMethod = oauth.ChallengePlain
	}

	switch {
	case !outer.Type.IsValid():
		return nil, oauth.ErrInvalidRequest("type must be authenticate or link")
	case outer.RedirectURI == "":
		return nil, oauth.ErrInvalidRequest("redirect_uri is required")
	case outer.ResponseType != oauth.ResponseTypeCode:
		return nil, oauth.ErrInvalidRequest("response_type must be code")
	case outer.GrantType != oauth.GrantAuthorizationCode:
		return nil, oauth.ErrUnsupportedGrantType().WithDetail("grant_type", outer.GrantType)
	case outer.CodeChallenge == "":
		return nil, oauth.ErrInvalidRequest("code_challenge is required")
	case outer.CodeChallengeMethod != oauth.ChallengeS256 && outer.CodeChallengeMethod != oauth.ChallengePlain:
		return nil, oauth.ErrInvalidRequest("code_challenge_method must be S256 or plain")
	}
	return outer, nil
}
