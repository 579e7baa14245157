package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

type oidcClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewOIDC discovers issuer and builds a generic OpenID Connect provider. The
// profile comes from the verified ID token, or from the userinfo endpoint when
// the token response carries none.
func NewOIDC(ctx context.Context, s Settings, issuer string) (Provider, error) {
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	discovered, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, ErrExchangeFailed().WithCause(err).
			WithDetail("provider", string(TypeOIDC)).
			WithDetail("stage", "discovery")
	}
	verifier := discovered.Verifier(&oidc.Config{ClientID: s.ClientID})

	ep := discovered.Endpoint()
	s.HTTPClient = client
	s.Endpoints = Endpoints{AuthURL: ep.AuthURL, TokenURL: ep.TokenURL}

	fetch := func(ctx context.Context, b *baseProvider, token *oauth2.Token) (*UserInfo, error) {
		ctx = oidc.ClientContext(ctx, b.httpClient)
		var claims oidcClaims

		if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
			idToken, err := verifier.Verify(ctx, raw)
			if err != nil {
				return nil, ErrUserInfoFailed().WithCause(err).WithDetail("reason", "id token verification failed")
			}
			if err := idToken.Claims(&claims); err != nil {
				return nil, ErrUserInfoFailed().WithCause(err)
			}
		} else {
			info, err := discovered.UserInfo(ctx, oauth2.StaticTokenSource(token))
			if err != nil {
				return nil, ErrUserInfoFailed().WithCause(err).WithDetail("provider", string(TypeOIDC))
			}
			if err := info.Claims(&claims); err != nil {
				return nil, ErrUserInfoFailed().WithCause(err)
			}
		}
		if claims.Sub == "" {
			return nil, ErrUserInfoFailed().WithDetail("reason", "missing sub")
		}
		return &UserInfo{
			AccountID:       claims.Sub,
			Email:           claims.Email,
			DisplayName:     claims.Name,
			ProfileImageURL: claims.Picture,
			EmailVerified:   claims.EmailVerified,
		}, nil
	}

	return newBaseProvider(TypeOIDC, s, Endpoints{}, []string{oidc.ScopeOpenID, "email", "profile"}, nil, fetch), nil
}
