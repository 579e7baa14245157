package authapi

import (
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authsrv"
	"github.com/gofiber/fiber/v2"
)

// SessionHandlers serves the session endpoints of the auth context.
type SessionHandlers struct {
	issuer *authsrv.TokenIssuer
}

func NewSessionHandlers(issuer *authsrv.TokenIssuer) *SessionHandlers {
	return &SessionHandlers{issuer: issuer}
}

// RegisterRoutes mounts the handlers behind the request authentication middleware.
func (h *SessionHandlers) RegisterRoutes(router fiber.Router, mw *auth.RequestAuthMiddleware) {
	sessions := router.Group("/api/v1/auth/sessions", mw.Authenticate())
	sessions.Post("/current/refresh", h.RefreshAccessToken)
}

// RefreshAccessToken godoc
// POST /api/v1/auth/sessions/current/refresh
// Header: X-Refresh-Token
func (h *SessionHandlers) RefreshAccessToken(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrInvalidRefreshToken()
	}
	pair, err := h.issuer.RefreshAccessToken(c.UserContext(), ac.TenantID, c.Get(auth.HeaderRefreshToken))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"access_token": pair.AccessToken})
}
