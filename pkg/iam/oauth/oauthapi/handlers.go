package oauthapi

import (
	"errors"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth/oauthsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	relay         *oauthsrv.Service
	cookieMaxAge  time.Duration
	secureCookies bool
}

// NewHandlers serves the relay. secureCookies should be false only in
// development, where the API runs on plain http.
func NewHandlers(relay *oauthsrv.Service, cookieMaxAge time.Duration, secureCookies bool) *Handlers {
	if cookieMaxAge <= 0 {
		cookieMaxAge = 10 * time.Minute
	}
	return &Handlers{relay: relay, cookieMaxAge: cookieMaxAge, secureCookies: secureCookies}
}

func (h *Handlers) RegisterRoutes(router fiber.Router, mw *auth.RequestAuthMiddleware) {
	o := router.Group("/api/v1/auth/oauth")
	o.Get("/authorize/:provider", h.Authorize)
	o.Get("/callback/:provider", h.Callback)
	o.Post("/token", h.Token)

	router.Post("/api/v1/connected-accounts/me/:provider/access-token",
		mw.Authenticate(), auth.RequireUser(), h.ConnectedAccessToken)
}

// Authorize godoc
// GET /api/v1/auth/oauth/authorize/:provider
// Query: client_id, client_secret, redirect_uri, scope, state, grant_type,
// code_challenge, code_challenge_method, response_type, type, token,
// provider_scope, error_redirect_url (or error_redirect_uri),
// after_callback_redirect_url
func (h *Handlers) Authorize(c *fiber.Ctx) error {
	errorRedirect := c.Query("error_redirect_url")
	if errorRedirect == "" {
		errorRedirect = c.Query("error_redirect_uri")
	}

	res, err := h.relay.Authorize(c.UserContext(), oauthsrv.AuthorizeRequest{
		ProviderID:               kernel.ProviderID(c.Params("provider")),
		ClientID:                 c.Query("client_id"),
		ClientSecret:             c.Query("client_secret"),
		RedirectURI:              c.Query("redirect_uri"),
		Scope:                    c.Query("scope"),
		State:                    c.Query("state"),
		GrantType:                c.Query("grant_type"),
		ResponseType:             c.Query("response_type"),
		CodeChallenge:            c.Query("code_challenge"),
		CodeChallengeMethod:      c.Query("code_challenge_method"),
		Type:                     oauth.FlowType(c.Query("type")),
		Token:                    c.Query("token"),
		ProviderScope:            c.Query("provider_scope"),
		ErrorRedirectURL:         errorRedirect,
		AfterCallbackRedirectURL: c.Query("after_callback_redirect_url"),
	})
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauth.CookieName(res.InnerState),
		Value:    "true",
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		Secure:   h.secureCookies,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(res.Location, fiber.StatusFound)
}

// Callback godoc
// GET /api/v1/auth/oauth/callback/:provider
// Query: code, state
func (h *Handlers) Callback(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" {
		return oauth.ErrInvalidRequest("state is required")
	}
	cookie := oauth.CookieName(state)
	if c.Cookies(cookie) == "" {
		return oauth.ErrCookieMissing()
	}
	c.ClearCookie(cookie)

	res, err := h.relay.Callback(c.UserContext(), oauthsrv.CallbackRequest{
		ProviderID: kernel.ProviderID(c.Params("provider")),
		InnerState: state,
		Code:       c.Query("code"),
	})
	if err != nil {
		var redirect *oauthsrv.ErrorRedirect
		if errors.As(err, &redirect) {
			return c.Redirect(redirect.Location, fiber.StatusFound)
		}
		return err
	}
	return c.Redirect(res.Location, fiber.StatusFound)
}

// Token godoc
// POST /api/v1/auth/oauth/token
// Form: grant_type, client_id, client_secret, code, redirect_uri,
// code_verifier, refresh_token
func (h *Handlers) Token(c *fiber.Ctx) error {
	resp, err := h.relay.Token(c.UserContext(), oauthsrv.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
	})
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(resp)
}

type accessTokenRequest struct {
	Scope string `json:"scope"`
}

// ConnectedAccessToken godoc
// POST /api/v1/connected-accounts/me/:provider/access-token
// Body: {scope}
func (h *Handlers) ConnectedAccessToken(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)

	var req accessTokenRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return oauth.ErrInvalidRequest("invalid JSON body")
		}
	}
	res, err := h.relay.ConnectedAccessToken(c.UserContext(), ac.TenantID, *ac.UserID, kernel.ProviderID(c.Params("provider")), req.Scope)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
