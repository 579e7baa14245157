package auth

import (
	"context"
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

// Request headers read by the middleware.
const (
	HeaderProjectID       = "X-Project-Id"
	HeaderPublishableKey  = "X-Publishable-Client-Key"
	HeaderSecretServerKey = "X-Secret-Server-Key"
	HeaderSuperSecretKey  = "X-Super-Secret-Admin-Key"
	HeaderRefreshToken    = "X-Refresh-Token"
)

const localsAuthKey = "auth"

// KeyChecker is the part of the API key service the middleware needs.
type KeyChecker interface {
	Check(ctx context.Context, tenantID kernel.TenantID, sel apikey.Selector) (*apikey.KeySet, error)
}

// RequestAuthMiddleware establishes the kernel.AuthContext of a request from
// the project header, one API key header and an optional bearer token.
type RequestAuthMiddleware struct {
	keys  KeyChecker
	codec TokenCodec
}

func NewRequestAuthMiddleware(keys KeyChecker, codec TokenCodec) *RequestAuthMiddleware {
	return &RequestAuthMiddleware{keys: keys, codec: codec}
}

// Authenticate requires X-Project-Id plus a valid key. The most privileged key
// header present decides the access type.
func (m *RequestAuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := kernel.NewTenantID(strings.TrimSpace(c.Get(HeaderProjectID)))
		if tenantID.IsEmpty() {
			return iam.ErrProjectIDRequired()
		}
		ctx := c.UserContext()

		tier, sel := selectorFromHeaders(c)
		if tier == "" {
			return iam.ErrUnauthorized().WithDetail("reason", "an API key header is required")
		}
		set, err := m.keys.Check(ctx, tenantID, sel)
		if err != nil {
			return err
		}

		ac := &kernel.AuthContext{
			TenantID:   tenantID,
			AccessType: tier.AccessType(),
			KeySetID:   set.ID,
		}

		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			token, err := ParseAuthorizationHeader(header)
			if err != nil {
				return err
			}
			userID, err := m.userFromToken(ctx, tenantID, token)
			if err != nil {
				return err
			}
			ac.UserID = &userID
		}

		c.Locals(localsAuthKey, ac)
		c.SetUserContext(kernel.WithAuthContext(ctx, ac))
		return c.Next()
	}
}

// userFromToken decodes a bearer token and requires it to belong to tenantID.
func (m *RequestAuthMiddleware) userFromToken(ctx context.Context, tenantID kernel.TenantID, token string) (kernel.UserID, error) {
	claims, err := m.codec.Decode(token)
	if err != nil {
		logx.WithContext(ctx).WithField("reason", string(ReasonOf(err))).Warn("auth: bearer token rejected")
		return "", err
	}
	if claims.TenantID != tenantID {
		return "", iam.ErrProjectMismatch().
			WithDetail("token_project_id", claims.TenantID.String()).
			WithDetail("project_id", tenantID.String())
	}
	return claims.UserID, nil
}

// RequireAccess rejects requests authenticated below min.
func RequireAccess(min kernel.AccessType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok || !ac.IsValid() {
			return iam.ErrUnauthorized()
		}
		if !ac.AccessType.AtLeast(min) {
			return iam.ErrInsufficientAccess().
				WithDetail("required", string(min)).
				WithDetail("actual", string(ac.AccessType))
		}
		return c.Next()
	}
}

// RequireUser rejects requests without a bearer token.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok || !ac.HasUser() {
			return iam.ErrUserRequired()
		}
		return c.Next()
	}
}

// GetAuthContext returns the context set by Authenticate.
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(localsAuthKey).(*kernel.AuthContext)
	return ac, ok && ac != nil
}

// ParseAuthorizationHeader accepts "Bearer <token>" and the legacy "StackSession <token>".
func ParseAuthorizationHeader(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", ErrInvalidAuthHeader()
	}
	switch strings.ToLower(scheme) {
	case "bearer", "stacksession":
		return token, nil
	default:
		return "", ErrInvalidAuthHeader().WithDetail("scheme", scheme)
	}
}

func selectorFromHeaders(c *fiber.Ctx) (apikey.Tier, apikey.Selector) {
	if v := c.Get(HeaderSuperSecretKey); v != "" {
		return apikey.TierSuperSecret, apikey.Selector{SuperSecretAdminKey: v}
	}
	if v := c.Get(HeaderSecretServerKey); v != "" {
		return apikey.TierSecret, apikey.Selector{SecretServerKey: v}
	}
	if v := c.Get(HeaderPublishableKey); v != "" {
		return apikey.TierPublishable, apikey.Selector{PublishableClientKey: v}
	}
	return "", apikey.Selector{}
}
