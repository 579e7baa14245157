package project

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Project is a tenant. Its id is the client_id of the OAuth surface.
type Project struct {
	ID          kernel.TenantID `json:"id"`
	DisplayName string          `json:"display_name"`
	Config      Config          `json:"config"`
}

// Config is stored as one JSON document.
type Config struct {
	SignUpEnabled     bool              `json:"sign_up_enabled"`
	CredentialEnabled bool              `json:"credential_enabled"`
	MagicLinkEnabled  bool              `json:"magic_link_enabled"`
	PasskeyEnabled    bool              `json:"passkey_enabled"`
	AllowLocalhost    bool              `json:"allow_localhost"`
	Domains           []Domain          `json:"domains"`
	OAuthProviders    []provider.Config `json:"oauth_providers"`
}

// Domain is a trusted origin plus the path of its auth handler.
type Domain struct {
	Domain      string `json:"domain"`
	HandlerPath string `json:"handler_path"`
}

// ProvisionedProject is a project created for an integration client and not yet
// transferred to a user.
type ProvisionedProject struct {
	ProjectID kernel.TenantID
	ClientID  string
}

// EnabledProvider returns the enabled provider config with id.
func (p *Project) EnabledProvider(id kernel.ProviderID) (*provider.Config, bool) {
	for i := range p.Config.OAuthProviders {
		cfg := &p.Config.OAuthProviders[i]
		if cfg.ID == id {
			if !cfg.Enabled {
				return nil, false
			}
			return cfg, true
		}
	}
	return nil, false
}

// IsRedirectAllowed reports whether raw may receive a redirect: a localhost URL
// when AllowLocalhost is set, or a URL on the scheme, host and port of a
// configured domain whose path starts with the domain's path.
func (p *Project) IsRedirectAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	if p.Config.AllowLocalhost && isLocalhost(u.Hostname()) {
		return true
	}
	for _, d := range p.Config.Domains {
		allowed, err := url.Parse(d.Domain)
		if err != nil || allowed.Host == "" {
			continue
		}
		if !strings.EqualFold(allowed.Scheme, u.Scheme) ||
			!strings.EqualFold(allowed.Hostname(), u.Hostname()) ||
			effectivePort(allowed) != effectivePort(u) {
			continue
		}
		base := strings.TrimSuffix(allowed.Path, "/")
		if u.Path == base || strings.HasPrefix(u.Path, base+"/") || base == "" {
			return true
		}
	}
	return false
}

// CheckRedirect is IsRedirectAllowed as an error.
func (p *Project) CheckRedirect(raw string) error {
	if !p.IsRedirectAllowed(raw) {
		return ErrRedirectURLNotWhitelisted(raw)
	}
	return nil
}

// IsOriginAllowed reports whether a browser origin (scheme://host[:port]) may
// run WebAuthn ceremonies for the project: the origin of a configured domain,
// or a localhost origin when AllowLocalhost is set.
func (p *Project) IsOriginAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
		return false
	}
	if p.Config.AllowLocalhost && isLocalhost(u.Hostname()) {
		return true
	}
	for _, d := range p.Config.Domains {
		allowed, err := url.Parse(d.Domain)
		if err != nil || allowed.Host == "" {
			continue
		}
		if strings.EqualFold(allowed.Scheme, u.Scheme) &&
			strings.EqualFold(allowed.Hostname(), u.Hostname()) &&
			effectivePort(allowed) == effectivePort(u) {
			return true
		}
	}
	return false
}

// Origins lists the origins of the configured domains.
func (p *Project) Origins() []string {
	var origins []string
	for _, d := range p.Config.Domains {
		u, err := url.Parse(d.Domain)
		if err != nil || u.Host == "" {
			continue
		}
		origins = append(origins, strings.ToLower(u.Scheme)+"://"+strings.ToLower(u.Host))
	}
	return origins
}

func isLocalhost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("PROJECT")

var (
	CodeNotFound                  = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Project not found")
	CodeNotProvisioned            = ErrRegistry.Register("NOT_PROVISIONED", errx.TypeValidation, http.StatusBadRequest, "Project is not awaiting transfer")
	CodeInvalidConfig             = ErrRegistry.Register("INVALID_CONFIG", errx.TypeInternal, http.StatusInternalServerError, "Stored project configuration is invalid")
	CodeRedirectURLNotWhitelisted = ErrRegistry.Register("REDIRECT_URL_NOT_WHITELISTED", errx.TypeValidation, http.StatusBadRequest, "Redirect URL is not whitelisted for this project")
)

func ErrNotFound() *errx.Error       { return ErrRegistry.New(CodeNotFound) }
func ErrNotProvisioned() *errx.Error { return ErrRegistry.New(CodeNotProvisioned) }
func ErrInvalidConfig() *errx.Error  { return ErrRegistry.New(CodeInvalidConfig) }

func ErrRedirectURLNotWhitelisted(url string) *errx.Error {
	return ErrRegistry.New(CodeRedirectURLNotWhitelisted).WithDetail("url", url)
}
