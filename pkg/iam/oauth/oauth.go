// Package oauth holds the records of the OAuth relay: the outer authorization
// request parked while the browser visits the provider, and the authorization
// codes the relay issues once the provider calls back.
package oauth

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"golang.org/x/oauth2"
)

// FlowType is what the relay does with the provider account.
type FlowType string

const (
	FlowAuthenticate FlowType = "authenticate"
	FlowLink         FlowType = "link"
)

func (t FlowType) IsValid() bool { return t == FlowAuthenticate || t == FlowLink }

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"

	ResponseTypeCode = "code"

	ChallengeS256  = "S256"
	ChallengePlain = "plain"

	// ScopeLegacy is the only scope clients may request.
	ScopeLegacy = "legacy"

	// CookiePrefix plus the inner state names the cookie binding the browser to
	// one relay.
	CookiePrefix = "gatekeeper-oauth-inner-"
)

// CookieName is the name of the CSRF cookie for innerState.
func CookieName(innerState string) string { return CookiePrefix + innerState }

// OuterInfo is the client's authorization request, parked under the inner
// state while the browser is at the provider.
type OuterInfo struct {
	TenantID             kernel.TenantID   `json:"project_id"`
	ProviderID           kernel.ProviderID `json:"provider_id"`
	PublishableClientKey string            `json:"publishable_client_key"`
	RedirectURI          string            `json:"redirect_uri"`
	Scope                string            `json:"scope"`
	State                string            `json:"state"`
	GrantType            string            `json:"grant_type"`
	ResponseType         string            `json:"response_type"`
	CodeChallenge        string            `json:"code_challenge"`
	CodeChallengeMethod  string            `json:"code_challenge_method"`
	InnerCodeVerifier    string            `json:"inner_code_verifier"`
	Type                 FlowType          `json:"type"`

	// ProjectUserID is the user the account gets linked to. Link flows only.
	ProjectUserID kernel.UserID `json:"project_user_id,omitempty"`

	ProviderScope            string    `json:"provider_scope,omitempty"`
	ErrorRedirectURL         string    `json:"error_redirect_url,omitempty"`
	AfterCallbackRedirectURL string    `json:"after_callback_redirect_url,omitempty"`
	ExpiresAt                time.Time `json:"expires_at"`
}

// Validate checks the fields the callback relies on. A stored record failing
// it is a bug, so the error is an assertion.
func (o *OuterInfo) Validate() error {
	missing := func(field string) error {
		return errx.Assertion("outer oauth record is missing a required field").
			WithDetail("field", field).
			WithDetail("project_id", o.TenantID.String())
	}
	switch {
	case o.TenantID.IsEmpty():
		return missing("project_id")
	case o.ProviderID.IsEmpty():
		return missing("provider_id")
	case o.RedirectURI == "":
		return missing("redirect_uri")
	case o.InnerCodeVerifier == "":
		return missing("inner_code_verifier")
	case o.CodeChallenge == "":
		return missing("code_challenge")
	case !o.Type.IsValid():
		return missing("type")
	case o.Type == FlowLink && o.ProjectUserID.IsEmpty():
		return missing("project_user_id")
	case o.ExpiresAt.IsZero():
		return missing("expires_at")
	}
	return nil
}

func (o *OuterInfo) IsExpired(now time.Time) bool { return !now.Before(o.ExpiresAt) }

// AuthorizationCode is the relay's own code, exchanged at the token endpoint.
type AuthorizationCode struct {
	Code                     string          `json:"code"`
	TenantID                 kernel.TenantID `json:"project_id"`
	UserID                   kernel.UserID   `json:"user_id"`
	RedirectURI              string          `json:"redirect_uri"`
	Scope                    string          `json:"scope"`
	CodeChallenge            string          `json:"code_challenge"`
	CodeChallengeMethod      string          `json:"code_challenge_method"`
	NewUser                  bool            `json:"new_user"`
	AfterCallbackRedirectURL string          `json:"after_callback_redirect_url,omitempty"`
	ExpiresAt                time.Time       `json:"expires_at"`
}

func (c *AuthorizationCode) IsExpired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// VerifyPKCE checks verifier against the stored challenge.
func (c *AuthorizationCode) VerifyPKCE(verifier string) bool {
	if verifier == "" {
		return false
	}
	var expected string
	switch c.CodeChallengeMethod {
	case ChallengeS256:
		expected = oauth2.S256ChallengeFromVerifier(verifier)
	case ChallengePlain, "":
		expected = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(c.CodeChallenge)) == 1
}

// TokenResponse is the body of a successful token request.
type TokenResponse struct {
	AccessToken              string `json:"access_token"`
	RefreshToken             string `json:"refresh_token,omitempty"`
	TokenType                string `json:"token_type"`
	ExpiresIn                int    `json:"expires_in"`
	Scope                    string `json:"scope"`
	IsNewUser                bool   `json:"is_new_user"`
	AfterCallbackRedirectURL string `json:"after_callback_redirect_url,omitempty"`
}

// CheckScope accepts an empty scope or one made of ScopeLegacy only.
func CheckScope(scope string) error {
	for _, s := range strings.Fields(scope) {
		if s != ScopeLegacy {
			return ErrInvalidScope().WithDetail("scope", s)
		}
	}
	return nil
}

// StripFragment drops the #fragment of a redirect URI.
func StripFragment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("OAUTH")

var (
	CodeProviderNotFoundOrDisabled            = ErrRegistry.Register("PROVIDER_NOT_FOUND_OR_DISABLED", errx.TypeValidation, http.StatusBadRequest, "OAuth provider not found or disabled")
	CodeAccessTokenNotAvailableWithSharedKeys = ErrRegistry.Register("ACCESS_TOKEN_NOT_AVAILABLE_WITH_SHARED_KEYS", errx.TypeBusiness, http.StatusBadRequest, "Access tokens are not available for providers using shared keys")
	CodeExtraScopeNotAvailableWithSharedKeys  = ErrRegistry.Register("EXTRA_SCOPE_NOT_AVAILABLE_WITH_SHARED_KEYS", errx.TypeBusiness, http.StatusBadRequest, "Extra provider scopes are not available for providers using shared keys")
	CodeConnectionNotConnectedToUser          = ErrRegistry.Register("CONNECTION_NOT_CONNECTED_TO_USER", errx.TypeBusiness, http.StatusBadRequest, "The user is not connected to this provider")
	CodeConnectionMissingRequiredScope        = ErrRegistry.Register("CONNECTION_MISSING_REQUIRED_SCOPE", errx.TypeBusiness, http.StatusBadRequest, "The connection was not granted the required scope")
	CodeCookieMissing                         = ErrRegistry.Register("COOKIE_MISSING", errx.TypeValidation, http.StatusBadRequest, "The OAuth cookie is missing, restart the authorization")
	CodeStateNotFound                         = ErrRegistry.Register("STATE_NOT_FOUND", errx.TypeValidation, http.StatusBadRequest, "OAuth state not found or expired, restart the authorization")
	CodeTenantMismatch                        = ErrRegistry.Register("TENANT_MISMATCH", errx.TypeForbidden, http.StatusForbidden, "The access token belongs to a different project")
	CodeConnectionAlreadyConnectedToOther     = ErrRegistry.Register("CONNECTION_ALREADY_CONNECTED_TO_ANOTHER_USER", errx.TypeConflict, http.StatusConflict, "This provider account is already connected to another user")
	CodeUserAlreadyConnectedToOtherAccount    = ErrRegistry.Register("USER_ALREADY_CONNECTED_TO_ANOTHER_ACCOUNT", errx.TypeConflict, http.StatusConflict, "The user is already connected to another account of this provider")
	CodeInvalidScope                          = ErrRegistry.Register("INVALID_SCOPE", errx.TypeValidation, http.StatusBadRequest, "Invalid scope")
	CodeInvalidGrant                          = ErrRegistry.Register("INVALID_GRANT", errx.TypeValidation, http.StatusBadRequest, "Invalid or expired authorization grant")
	CodeInvalidClient                         = ErrRegistry.Register("INVALID_CLIENT", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid client credentials")
	CodeUnsupportedGrantType                  = ErrRegistry.Register("UNSUPPORTED_GRANT_TYPE", errx.TypeValidation, http.StatusBadRequest, "Unsupported grant type")
	CodeInvalidRequest                        = ErrRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid OAuth request")
)

func ErrProviderNotFoundOrDisabled(providerID kernel.ProviderID) *errx.Error {
	return ErrRegistry.New(CodeProviderNotFoundOrDisabled).WithDetail("provider_id", providerID.String())
}

func ErrAccessTokenNotAvailableWithSharedKeys() *errx.Error {
	return ErrRegistry.New(CodeAccessTokenNotAvailableWithSharedKeys)
}

func ErrExtraScopeNotAvailableWithSharedKeys() *errx.Error {
	return ErrRegistry.New(CodeExtraScopeNotAvailableWithSharedKeys)
}

func ErrConnectionNotConnectedToUser() *errx.Error {
	return ErrRegistry.New(CodeConnectionNotConnectedToUser)
}

func ErrConnectionMissingRequiredScope(scope string) *errx.Error {
	return ErrRegistry.New(CodeConnectionMissingRequiredScope).WithDetail("scope", scope)
}

func ErrCookieMissing() *errx.Error  { return ErrRegistry.New(CodeCookieMissing) }
func ErrStateNotFound() *errx.Error  { return ErrRegistry.New(CodeStateNotFound) }
func ErrTenantMismatch() *errx.Error { return ErrRegistry.New(CodeTenantMismatch) }

func ErrConnectionAlreadyConnectedToAnotherUser() *errx.Error {
	return ErrRegistry.New(CodeConnectionAlreadyConnectedToOther)
}

func ErrUserAlreadyConnectedToAnotherAccount() *errx.Error {
	return ErrRegistry.New(CodeUserAlreadyConnectedToOtherAccount)
}

func ErrInvalidScope() *errx.Error         { return ErrRegistry.New(CodeInvalidScope) }
func ErrInvalidGrant() *errx.Error         { return ErrRegistry.New(CodeInvalidGrant) }
func ErrInvalidClient() *errx.Error        { return ErrRegistry.New(CodeInvalidClient) }
func ErrUnsupportedGrantType() *errx.Error { return ErrRegistry.New(CodeUnsupportedGrantType) }

func ErrInvalidRequest(reason string) *errx.Error {
	return ErrRegistry.New(CodeInvalidRequest).WithDetail("reason", reason)
}
