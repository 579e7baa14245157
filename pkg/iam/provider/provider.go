// Package provider implements the external identity providers behind the OAuth
// relay. Each provider builds an authorization URL, exchanges a callback code
// for tokens plus a normalized profile, and refreshes access tokens.
package provider

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Type is the upstream identity provider.
type Type string

const (
	TypeGoogle    Type = "google"
	TypeGitHub    Type = "github"
	TypeFacebook  Type = "facebook"
	TypeMicrosoft Type = "microsoft"
	TypeSpotify   Type = "spotify"
	TypeOIDC      Type = "oidc"
)

// SharedTypes can run on the service's own credentials.
var SharedTypes = []Type{TypeGoogle, TypeGitHub, TypeFacebook, TypeMicrosoft, TypeSpotify}

// Kind tags which credentials a provider config uses.
type Kind string

const (
	// KindShared uses the service's own registered app credentials.
	KindShared Kind = "shared"
	// KindStandard uses the project's own client id and secret.
	KindStandard Kind = "standard"
)

// Config is the per-project configuration of one provider.
type Config struct {
	ID      kernel.ProviderID `json:"id"`
	Type    Type              `json:"type"`
	Kind    Kind              `json:"kind"`
	Enabled bool              `json:"enabled"`

	// standard only
	ClientID          string `json:"client_id,omitempty"`
	ClientSecret      string `json:"client_secret,omitempty"`
	FacebookConfigID  string `json:"facebook_config_id,omitempty"`
	MicrosoftTenantID string `json:"microsoft_tenant_id,omitempty"`
	Issuer            string `json:"issuer,omitempty"`
}

func (c Config) IsShared() bool { return c.Kind == KindShared }

// Validate checks the tagged union is consistent.
func (c Config) Validate() error {
	if c.ID.IsEmpty() {
		return ErrMisconfigured().WithDetail("reason", "provider id is required")
	}
	switch c.Kind {
	case KindShared:
		for _, t := range SharedTypes {
			if t == c.Type {
				return nil
			}
		}
		return ErrUnsupportedType().WithDetail("type", string(c.Type)).WithDetail("kind", string(c.Kind))
	case KindStandard:
		if c.ClientID == "" || c.ClientSecret == "" {
			return ErrMisconfigured().WithDetail("provider_id", c.ID.String()).WithDetail("reason", "client id and secret are required")
		}
		if c.Type == TypeOIDC && c.Issuer == "" {
			return ErrMisconfigured().WithDetail("provider_id", c.ID.String()).WithDetail("reason", "issuer is required")
		}
		return nil
	default:
		return ErrMisconfigured().WithDetail("kind", string(c.Kind))
	}
}

// UserInfo is the normalized profile of the signed-in account.
type UserInfo struct {
	AccountID       string
	Email           string
	DisplayName     string
	ProfileImageURL string
	EmailVerified   bool
}

// TokenSet is what the provider returned. RefreshToken may be empty.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type AuthorizationOptions struct {
	CodeVerifier string
	State        string
	// ExtraScope is space separated and added to the provider's base scopes.
	ExtraScope string
}

type CallbackOptions struct {
	Code         string
	CodeVerifier string
}

type AccessTokenOptions struct {
	RefreshToken string
	Scope        string
}

// CallbackResult bundles the profile and the tokens of a code exchange.
type CallbackResult struct {
	UserInfo UserInfo
	Tokens   TokenSet
}

// Provider is one configured upstream identity provider.
type Provider interface {
	// Scopes returns the base scopes always requested.
	Scopes() []string
	AuthorizationURL(opts AuthorizationOptions) (string, error)
	Callback(ctx context.Context, opts CallbackOptions) (*CallbackResult, error)
	AccessToken(ctx context.Context, opts AccessTokenOptions) (*TokenSet, error)
}

