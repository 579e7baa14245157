package oauthsrv_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth/oauthsrv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// issueCode runs the relay and returns the service code plus the verifier.
func (f *fixture) issueCode(t *testing.T, mutate func(*oauthsrv.AuthorizeRequest)) (string, string) {
	t.Helper()
	verifier := oauth2.GenerateVerifier()
	req := authorizeRequest(tenant, verifier)
	if mutate != nil {
		mutate(&req)
	}
	cb := f.relay(t, req)
	u, err := url.Parse(cb.Location)
	require.NoError(t, err)
	return u.Query().Get("code"), verifier
}

func codeGrant(code, verifier string) oauthsrv.TokenRequest {
	return oauthsrv.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     tenant.String(),
		ClientSecret: "pck_one",
		Code:         code,
		RedirectURI:  redirectURI,
		CodeVerifier: verifier,
	}
}

func TestTokenCodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code, verifier := f.issueCode(t, nil)

	_, err := f.svc.Token(ctx, codeGrant(code, verifier))
	require.NoError(t, err)

	_, err = f.svc.Token(ctx, codeGrant(code, verifier))
	assert.True(t, errx.HasCode(err, oauth.CodeInvalidGrant))
}

func TestTokenRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*oauthsrv.TokenRequest)
		code   *errx.ErrorCode
	}{
		{"verifier", func(r *oauthsrv.TokenRequest) { r.CodeVerifier = oauth2.GenerateVerifier() }, oauth.CodeInvalidGrant},
		{"missing verifier", func(r *oauthsrv.TokenRequest) { r.CodeVerifier = "" }, oauth.CodeInvalidGrant},
		{"redirect", func(r *oauthsrv.TokenRequest) { r.RedirectURI = "https://app.example.com/handler/other" }, oauth.CodeInvalidGrant},
		{"code of another client", func(r *oauthsrv.TokenRequest) { r.ClientID, r.ClientSecret = otherTenant.String(), "pck_two" }, oauth.CodeInvalidGrant},
		{"unknown code", func(r *oauthsrv.TokenRequest) { r.Code = "made-up" }, oauth.CodeInvalidGrant},
		{"missing code", func(r *oauthsrv.TokenRequest) { r.Code = "" }, oauth.CodeInvalidRequest},
		{"bad secret", func(r *oauthsrv.TokenRequest) { r.ClientSecret = "pck_two" }, oauth.CodeInvalidClient},
		{"unknown client", func(r *oauthsrv.TokenRequest) { r.ClientID = "nope" }, oauth.CodeInvalidClient},
		{"grant type", func(r *oauthsrv.TokenRequest) { r.GrantType = "password" }, oauth.CodeUnsupportedGrantType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			code, verifier := f.issueCode(t, nil)
			req := codeGrant(code, verifier)
			tt.mutate(&req)
			_, err := f.svc.Token(context.Background(), req)
			assert.True(t, errx.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestTokenCodeExpires(t *testing.T) {
	f := newFixture(t)
	code, verifier := f.issueCode(t, nil)

	f.now = f.now.Add(10 * time.Minute)
	_, err := f.svc.Token(context.Background(), codeGrant(code, verifier))
	assert.True(t, errx.HasCode(err, oauth.CodeInvalidGrant))
}

func TestTokenPlainChallenge(t *testing.T) {
	f := newFixture(t)
	plain := oauth2.GenerateVerifier()
	code, _ := f.issueCode(t, func(r *oauthsrv.AuthorizeRequest) {
		r.CodeChallenge, r.CodeChallengeMethod = plain, ""
	})

	_, err := f.svc.Token(context.Background(), codeGrant(code, plain))
	require.NoError(t, err)
}

func TestTokenCarriesAfterCallbackRedirect(t *testing.T) {
	f := newFixture(t)
	code, verifier := f.issueCode(t, func(r *oauthsrv.AuthorizeRequest) {
		r.AfterCallbackRedirectURL = "https://app.example.com/handler/welcome"
	})

	resp, err := f.svc.Token(context.Background(), codeGrant(code, verifier))
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/handler/welcome", resp.AfterCallbackRedirectURL)
}

func TestRefreshTokenGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code, verifier := f.issueCode(t, nil)
	first, err := f.svc.Token(ctx, codeGrant(code, verifier))
	require.NoError(t, err)

	resp, err := f.svc.Token(ctx, oauthsrv.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     tenant.String(),
		ClientSecret: "pck_one",
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, resp.RefreshToken)
	claims, err := f.codec.Decode(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tenant, claims.TenantID)

	_, err = f.svc.Token(ctx, oauthsrv.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     tenant.String(),
		ClientSecret: "pck_one",
		RefreshToken: "made-up",
	})
	assert.True(t, errx.HasCode(err, auth.CodeInvalidRefreshToken))
}
