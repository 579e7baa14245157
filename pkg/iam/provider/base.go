package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"golang.org/x/oauth2"
)

// defaultTokenLifetime applies when the provider reports no expiry at all.
const defaultTokenLifetime = time.Hour

// Settings are the resolved credentials and endpoints of one provider instance.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoints    Endpoints
	HTTPClient   *http.Client
}

// Endpoints override the well-known provider URLs (tests, sovereign clouds).
type Endpoints struct {
	AuthURL  string
	TokenURL string
	// APIURL is the base of the profile API.
	APIURL string
}

func (e Endpoints) merge(defaults Endpoints) Endpoints {
	if e.AuthURL == "" {
		e.AuthURL = defaults.AuthURL
	}
	if e.TokenURL == "" {
		e.TokenURL = defaults.TokenURL
	}
	if e.APIURL == "" {
		e.APIURL = defaults.APIURL
	}
	return e
}

// profileFunc loads the normalized profile with a fresh token.
type profileFunc func(ctx context.Context, b *baseProvider, token *oauth2.Token) (*UserInfo, error)

// baseProvider is the x/oauth2 authorization-code + PKCE flow shared by every provider.
type baseProvider struct {
	name         Type
	oauth        oauth2.Config
	apiURL       string
	httpClient   *http.Client
	authParams   map[string]string
	fetchProfile profileFunc
}

func newBaseProvider(name Type, s Settings, defaults Endpoints, scopes []string, authParams map[string]string, fetch profileFunc) *baseProvider {
	ep := s.Endpoints.merge(defaults)
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &baseProvider{
		name: name,
		oauth: oauth2.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RedirectURL:  s.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   ep.AuthURL,
				TokenURL:  ep.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:       strings.TrimRight(ep.APIURL, "/"),
		httpClient:   client,
		authParams:   authParams,
		fetchProfile: fetch,
	}
}

func (b *baseProvider) Scopes() []string {
	return append([]string(nil), b.oauth.Scopes...)
}

// AuthorizationURL requests the base scopes plus extraScope, with an S256
// challenge derived from the verifier and offline access.
func (b *baseProvider) AuthorizationURL(opts AuthorizationOptions) (string, error) {
	if opts.State == "" || opts.CodeVerifier == "" {
		return "", ErrMisconfigured().WithDetail("reason", "state and code verifier are required")
	}
	cfg := b.oauth
	cfg.Scopes = MergeScopes(b.oauth.Scopes, opts.ExtraScope)

	params := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(opts.CodeVerifier),
		oauth2.AccessTypeOffline,
	}
	for k, v := range b.authParams {
		params = append(params, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.AuthCodeURL(opts.State, params...), nil
}

// Callback exchanges the code and loads the profile.
func (b *baseProvider) Callback(ctx context.Context, opts CallbackOptions) (*CallbackResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	token, err := b.oauth.Exchange(ctx, opts.Code, oauth2.VerifierOption(opts.CodeVerifier))
	if err != nil {
		return nil, b.exchangeError(err)
	}
	info, err := b.fetchProfile(ctx, b, token)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{UserInfo: *info, Tokens: processTokenSet(token, time.Now())}, nil
}

// AccessToken runs the refresh_token grant. The requested scope is enforced by
// the caller against the scopes stored with the refresh token.
func (b *baseProvider) AccessToken(ctx context.Context, opts AccessTokenOptions) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	token, err := b.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: opts.RefreshToken}).Token()
	if err != nil {
		return nil, b.exchangeError(err)
	}
	set := processTokenSet(token, time.Now())
	if set.RefreshToken == opts.RefreshToken {
		set.RefreshToken = ""
	}
	return &set, nil
}

func (b *baseProvider) exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		logx.WithFields(logx.Fields{
			"provider":          string(b.name),
			"error_code":        re.ErrorCode,
			"error_description": re.ErrorDescription,
			"status":            statusOf(re),
		}).Warn("provider: token endpoint rejected the request")
		if re.ErrorCode == "invalid_grant" {
			return ErrInvalidAuthorizationCode().WithCause(err).WithDetail("provider", string(b.name))
		}
	}
	return ErrExchangeFailed().WithCause(err).WithDetail("provider", string(b.name))
}

func statusOf(re *oauth2.RetrieveError) int {
	if re.Response == nil {
		return 0
	}
	return re.Response.StatusCode
}

// getJSON performs an authenticated GET against the profile API.
func (b *baseProvider) getJSON(ctx context.Context, url string, token *oauth2.Token, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrUserInfoFailed().WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return ErrUserInfoFailed().WithCause(err).WithDetail("provider", string(b.name))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ErrUserInfoFailed().
			WithCause(fmt.Errorf("status %d: %s", resp.StatusCode, body)).
			WithDetail("provider", string(b.name))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrUserInfoFailed().WithCause(err).WithDetail("provider", string(b.name))
	}
	return nil
}

// processTokenSet derives the expiry from expires_in, then expires_at, then a 1h default.
func processTokenSet(token *oauth2.Token, now time.Time) TokenSet {
	set := TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if set.ExpiresAt.IsZero() {
		if at, ok := numericExtra(token.Extra("expires_at")); ok && at > 0 {
			set.ExpiresAt = time.Unix(at, 0)
		} else {
			set.ExpiresAt = now.Add(defaultTokenLifetime)
		}
	}
	return set
}

func numericExtra(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// MergeScopes returns base plus every scope of extra not already present.
func MergeScopes(base []string, extra string) []string {
	out := append([]string(nil), base...)
	for _, s := range strings.Fields(extra) {
		found := false
		for _, have := range out {
			if have == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}
