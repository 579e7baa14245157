package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/config"
)

// Factory builds a Provider per request from a project's provider config.
// It owns the shared credentials and the callback base URL; nothing is cached.
type Factory struct {
	shared          map[string]config.SharedCredentials
	callbackBaseURL string
	httpClient      *http.Client
	endpoints       map[Type]Endpoints
}

type FactoryOption func(*Factory)

// WithHTTPClient sets the client used for token and profile requests.
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = client }
}

// WithEndpoints overrides the well-known URLs of one provider type.
func WithEndpoints(t Type, e Endpoints) FactoryOption {
	return func(f *Factory) { f.endpoints[t] = e }
}

func NewFactory(cfg config.OAuthConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		shared:          cfg.Shared,
		callbackBaseURL: strings.TrimRight(cfg.CallbackBaseURL, "/"),
		endpoints:       make(map[Type]Endpoints),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CallbackURL is where the provider sends the browser back for providerID.
func (f *Factory) CallbackURL(cfg Config) string {
	return f.callbackBaseURL + "/" + cfg.ID.String()
}

// Build selects the credentials by kind and constructs the provider.
func (f *Factory) Build(ctx context.Context, cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := Settings{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  f.CallbackURL(cfg),
		Endpoints:    f.endpoints[cfg.Type],
		HTTPClient:   f.httpClient,
	}
	facebookConfigID, microsoftTenant := cfg.FacebookConfigID, cfg.MicrosoftTenantID

	if cfg.IsShared() {
		creds, ok := f.shared[string(cfg.Type)]
		if !ok || creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, ErrMisconfigured().
				WithDetail("provider_type", string(cfg.Type)).
				WithDetail("reason", "shared credentials are not configured")
		}
		s.ClientID, s.ClientSecret = creds.ClientID, creds.ClientSecret
		facebookConfigID, microsoftTenant = "", creds.TenantID
	}

	switch cfg.Type {
	case TypeGoogle:
		return NewGoogle(s), nil
	case TypeGitHub:
		return NewGitHub(s), nil
	case TypeFacebook:
		return NewFacebook(s, facebookConfigID), nil
	case TypeMicrosoft:
		return NewMicrosoft(s, microsoftTenant), nil
	case TypeSpotify:
		return NewSpotify(s), nil
	case TypeOIDC:
		return NewOIDC(ctx, s, cfg.Issuer)
	default:
		return nil, ErrUnsupportedType().WithDetail("type", string(cfg.Type))
	}
}
