// Package authtest builds token issuers backed by memory for tests.
package authtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

const Secret = "authtest-secret-authtest-secret-"

type RefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*auth.RefreshToken
}

func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{tokens: make(map[string]*auth.RefreshToken)}
}

func (r *RefreshTokens) Save(_ context.Context, token *auth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens[token.TokenHash] = &cp
	return nil
}

func (r *RefreshTokens) FindByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok {
		return nil, auth.ErrInvalidRefreshToken()
	}
	cp := *t
	return &cp, nil
}

// NewIssuer returns an issuer signing with Secret and its codec.
func NewIssuer(t *testing.T) (*authsrv.TokenIssuer, *auth.JWTCodec) {
	t.Helper()
	codec, err := auth.NewJWTCodec(Secret, "", "gatekeeper")
	if err != nil {
		t.Fatalf("authtest: %v", err)
	}
	return authsrv.NewTokenIssuer(codec, NewRefreshTokens(), nil, time.Hour, 24*time.Hour), codec
}

// Keys accepts any key of any tier for every project.
type Keys struct{}

func (Keys) Check(_ context.Context, tenantID kernel.TenantID, _ apikey.Selector) (*apikey.KeySet, error) {
	return &apikey.KeySet{ID: "authtest", TenantID: tenantID}, nil
}

// NewMiddleware authenticates any key and bearer tokens signed by codec.
func NewMiddleware(codec auth.TokenCodec) *auth.RequestAuthMiddleware {
	return auth.NewRequestAuthMiddleware(Keys{}, codec)
}
