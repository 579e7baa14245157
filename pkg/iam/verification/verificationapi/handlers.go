package verificationapi

import (
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/flows"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// Redemption paths of the flows.
const (
	PathContactChannelVerify = "/api/v1/contact-channels/verify"
	PathSignIn               = "/api/v1/auth/otp/sign-in"
	PathPasswordReset        = "/api/v1/auth/password/reset"
	PathProjectTransfer      = "/api/v1/integrations/neon/projects/transfer/confirm"
	PathPasskeyRegister      = "/api/v1/auth/passkey/register"
	PathPasskeySignIn        = "/api/v1/auth/passkey/sign-in"
	PathMFASignIn            = "/api/v1/auth/mfa/sign-in"
)

type Handlers struct {
	flows *flows.Flows
}

func NewHandlers(f *flows.Flows) *Handlers {
	return &Handlers{flows: f}
}

// RegisterRoutes mounts the send endpoints and the redemption endpoints of
// every flow behind the request authentication middleware.
func (h *Handlers) RegisterRoutes(router fiber.Router, mw *auth.RequestAuthMiddleware) {
	authn := mw.Authenticate()

	router.Post("/api/v1/contact-channels/send-verification-code", authn, auth.RequireUser(), h.SendContactVerification)
	router.Post("/api/v1/auth/otp/send-sign-in-code", authn, h.SendSignInCode)
	router.Post("/api/v1/auth/password/send-reset-code", authn, h.SendPasswordReset)
	router.Post("/api/v1/integrations/neon/projects/transfer/initiate", authn, auth.RequireAccess(kernel.AccessServer), h.InitiateTransfer)
	router.Post("/api/v1/auth/passkey/initiate-passkey-registration", authn, auth.RequireUser(), h.InitiatePasskeyRegistration)
	router.Post("/api/v1/auth/passkey/initiate-passkey-authentication", authn, h.InitiatePasskeyAuthentication)
	router.Post("/api/v1/auth/mfa/totp", authn, auth.RequireUser(), h.EnrollTOTP)
	router.Delete("/api/v1/auth/mfa/totp", authn, auth.RequireUser(), h.DisableTOTP)

	Mount(router, PathContactChannelVerify, h.flows.ContactChannel, authn)
	Mount(router, PathSignIn, h.flows.SignIn, authn)
	Mount(router, PathPasswordReset, h.flows.PasswordReset, authn)
	Mount(router, PathProjectTransfer, h.flows.ProjectTransfer, authn)
	Mount(router, PathPasskeyRegister, h.flows.PasskeyRegistration, authn)
	Mount(router, PathPasskeySignIn, h.flows.PasskeyAuthentication, authn)
	Mount(router, PathMFASignIn, h.flows.MFA, authn)
}

type sendRequest struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callback_url"`
}

func parseSend(c *fiber.Ctx, needEmail bool) (sendRequest, error) {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return req, verification.ErrInvalidBody().WithDetail("reason", "invalid JSON body")
	}
	if needEmail && req.Email == "" {
		return req, verification.ErrInvalidBody().WithDetail("reason", "email is required")
	}
	return req, nil
}

// SendContactVerification godoc
// POST /api/v1/contact-channels/send-verification-code
// Body: {callback_url}
func (h *Handlers) SendContactVerification(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	req, err := parseSend(c, false)
	if err != nil {
		return err
	}
	if _, err := h.flows.SendContactVerification(c.UserContext(), ac.TenantID, *ac.UserID, req.CallbackURL); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// SendSignInCode godoc
// POST /api/v1/auth/otp/send-sign-in-code
// Body: {email, callback_url}
func (h *Handlers) SendSignInCode(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	req, err := parseSend(c, true)
	if err != nil {
		return err
	}
	nonce, err := h.flows.SendSignInCode(c.UserContext(), ac.TenantID, req.Email, req.CallbackURL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"nonce": nonce})
}

// SendPasswordReset godoc
// POST /api/v1/auth/password/send-reset-code
// Body: {email, callback_url}
func (h *Handlers) SendPasswordReset(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	req, err := parseSend(c, true)
	if err != nil {
		return err
	}
	if err := h.flows.SendPasswordReset(c.UserContext(), ac.TenantID, req.Email, req.CallbackURL); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// InitiateTransfer godoc
// POST /api/v1/integrations/neon/projects/transfer/initiate
// Authenticated with the secret server key of the provisioned project.
func (h *Handlers) InitiateTransfer(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	link, err := h.flows.InitiateTransfer(c.UserContext(), ac.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"confirmation_url": link})
}

// InitiatePasskeyRegistration godoc
// POST /api/v1/auth/passkey/initiate-passkey-registration
// Returns {options_json, code}. The browser hands options_json to
// navigator.credentials.create and redeems code at /register.
func (h *Handlers) InitiatePasskeyRegistration(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	challenge, err := h.flows.InitiatePasskeyRegistration(c.UserContext(), ac.TenantID, *ac.UserID)
	if err != nil {
		return err
	}
	return c.JSON(challenge)
}

// InitiatePasskeyAuthentication godoc
// POST /api/v1/auth/passkey/initiate-passkey-authentication
// Returns {options_json, code}, redeemed at /sign-in.
func (h *Handlers) InitiatePasskeyAuthentication(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	challenge, err := h.flows.InitiatePasskeyAuthentication(c.UserContext(), ac.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(challenge)
}

// EnrollTOTP godoc
// POST /api/v1/auth/mfa/totp
// Returns {secret, otpauth_url}. The secret is not shown again.
func (h *Handlers) EnrollTOTP(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	key, err := h.flows.EnrollTOTP(c.UserContext(), ac.TenantID, *ac.UserID)
	if err != nil {
		return err
	}
	return c.JSON(key)
}

// DisableTOTP godoc
// DELETE /api/v1/auth/mfa/totp
func (h *Handlers) DisableTOTP(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)
	if err := h.flows.DisableTOTP(c.UserContext(), ac.TenantID, *ac.UserID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
