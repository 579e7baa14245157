// Package oauthsrv runs the OAuth relay: it parks the client's authorization
// request, sends the browser to the provider, and on callback turns the
// provider identity into a local user and a service authorization code.
package oauthsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/metricsx"
)

// ProviderBuilder constructs a provider from a project's provider config.
// *provider.Factory implements it.
type ProviderBuilder interface {
	Build(ctx context.Context, cfg provider.Config) (provider.Provider, error)
}

// Relay stages, used as the metrics label.
const (
	StageAuthorize = "authorize"
	StageCallback  = "callback"
	StageToken     = "token"
	StageConnected = "connected_access_token"
)

type Deps struct {
	Projects  project.Repository
	Keys      auth.KeyChecker
	Codec     auth.TokenCodec
	Providers ProviderBuilder
	Users     *usersrv.Service
	Accounts  user.AccountRepository
	Tokens    *authsrv.TokenIssuer
	Outer     oauth.OuterInfoStore
	Codes     oauth.AuthorizationCodeStore

	// Audit is optional.
	Audit   auth.AuditService
	Metrics *metricsx.Metrics
	Clock   func() time.Time

	OuterInfoTTL         time.Duration
	AuthorizationCodeTTL time.Duration
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.OuterInfoTTL <= 0 {
		deps.OuterInfoTTL = 10 * time.Minute
	}
	if deps.AuthorizationCodeTTL <= 0 {
		deps.AuthorizationCodeTTL = 10 * time.Minute
	}
	return &Service{deps: deps}
}

// trust is what both hops re-establish from scratch.
type trust struct {
	project  *project.Project
	config   *provider.Config
	provider provider.Provider
}

// establishTrust loads the project, checks the publishable key and builds the
// enabled provider. Once the project is loaded the returned trust is non-nil,
// even alongside an error, so callers can still consult its redirect
// whitelist.
func (s *Service) establishTrust(ctx context.Context, tenantID kernel.TenantID, publishableKey string, providerID kernel.ProviderID) (*trust, error) {
	if tenantID.IsEmpty() {
		return nil, oauth.ErrInvalidRequest("client_id is required")
	}
	p, err := s.deps.Projects.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	t := &trust{project: p}

	if publishableKey == "" {
		return t, apikey.ErrKeyNotFound()
	}
	if _, err := s.deps.Keys.Check(ctx, tenantID, apikey.Selector{PublishableClientKey: publishableKey}); err != nil {
		return t, err
	}
	cfg, ok := p.EnabledProvider(providerID)
	if !ok {
		return t, oauth.ErrProviderNotFoundOrDisabled(providerID)
	}
	t.config = cfg
	if t.provider, err = s.deps.Providers.Build(ctx, *cfg); err != nil {
		return t, err
	}
	return t, nil
}

func (s *Service) record(ctx context.Context, stage string, tenantID kernel.TenantID, err error) {
	outcome := outcomeOf(err)
	s.deps.Metrics.RelayStep(stage, outcome)

	entry := logx.WithContext(ctx).WithFields(logx.Fields{
		"stage":     stage,
		"tenant_id": tenantID.String(),
		"outcome":   outcome,
	})
	switch outcome {
	case "ok":
		entry.Debug("oauth relay step completed")
	case "error":
		entry.WithError(err).Error("oauth relay step failed")
	default:
		entry.WithError(err).Info("oauth relay step rejected")
	}
}

func outcomeOf(err error) string {
	var e *errx.Error
	switch {
	case err == nil:
		return "ok"
	case errx.HasCode(err, oauth.CodeStateNotFound):
		return "state_not_found"
	case errx.HasCode(err, provider.CodeExchangeFailed),
		errx.HasCode(err, provider.CodeInvalidAuthorizationCode),
		errx.HasCode(err, provider.CodeUserInfoFailed):
		return "provider_error"
	case errx.As(err, &e) && !e.Type.IsServerFault():
		return "rejected"
	default:
		return "error"
	}
}
