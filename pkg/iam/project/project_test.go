package project_test

import (
	"testing"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRedirectAllowed(t *testing.T) {
	p := &project.Project{
		ID: "proj-1",
		Config: project.Config{
			Domains: []project.Domain{
				{Domain: "https://app.example.com", HandlerPath: "/handler"},
				{Domain: "https://docs.example.com/portal/", HandlerPath: "/handler"},
				{Domain: "http://staging.example.com:8080", HandlerPath: "/handler"},
			},
		},
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"exact host", "https://app.example.com/callback", true},
		{"explicit default port", "https://app.example.com:443/callback", true},
		{"host is case insensitive", "https://APP.example.com/x", true},
		{"other scheme", "http://app.example.com/callback", false},
		{"other port", "https://app.example.com:8443/callback", false},
		{"subdomain", "https://evil.app.example.com/callback", false},
		{"suffix attack", "https://app.example.com.evil.io/callback", false},
		{"path prefix", "https://docs.example.com/portal/oauth", true},
		{"path root of domain", "https://docs.example.com/portal", true},
		{"path outside prefix", "https://docs.example.com/portalx", false},
		{"path other", "https://docs.example.com/other", false},
		{"custom port", "http://staging.example.com:8080/cb", true},
		{"custom port missing", "http://staging.example.com/cb", false},
		{"localhost disabled", "http://localhost:3000/cb", false},
		{"relative", "/callback", false},
		{"garbage", "::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsRedirectAllowed(tt.url))
		})
	}
}

func TestIsRedirectAllowed_Localhost(t *testing.T) {
	p := &project.Project{Config: project.Config{AllowLocalhost: true}}

	assert.True(t, p.IsRedirectAllowed("http://localhost:3000/cb"))
	assert.True(t, p.IsRedirectAllowed("http://127.0.0.1/cb"))
	assert.True(t, p.IsRedirectAllowed("http://[::1]:5173/"))
	assert.False(t, p.IsRedirectAllowed("https://example.com/cb"))
}

func TestIsOriginAllowed(t *testing.T) {
	p := &project.Project{Config: project.Config{
		Domains: []project.Domain{
			{Domain: "https://app.example.com", HandlerPath: "/handler"},
			{Domain: "https://docs.example.com/portal/"},
		},
	}}

	assert.True(t, p.IsOriginAllowed("https://app.example.com"))
	assert.True(t, p.IsOriginAllowed("https://docs.example.com"))
	assert.False(t, p.IsOriginAllowed("https://app.example.com/handler"))
	assert.False(t, p.IsOriginAllowed("http://app.example.com"))
	assert.False(t, p.IsOriginAllowed("http://localhost:3000"))
	assert.Equal(t, []string{"https://app.example.com", "https://docs.example.com"}, p.Origins())

	p.Config.AllowLocalhost = true
	assert.True(t, p.IsOriginAllowed("http://localhost:3000"))
}

func TestEnabledProvider(t *testing.T) {
	p := &project.Project{
		Config: project.Config{
			OAuthProviders: []provider.Config{
				{ID: "google", Type: provider.TypeGoogle, Kind: provider.KindShared, Enabled: true},
				{ID: "github", Type: provider.TypeGitHub, Kind: provider.KindShared, Enabled: false},
			},
		},
	}

	cfg, ok := p.EnabledProvider("google")
	require.True(t, ok)
	assert.Equal(t, provider.TypeGoogle, cfg.Type)

	_, ok = p.EnabledProvider("github")
	assert.False(t, ok, "disabled providers are not returned")

	_, ok = p.EnabledProvider("spotify")
	assert.False(t, ok)
}
