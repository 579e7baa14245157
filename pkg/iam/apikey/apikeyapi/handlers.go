package apikeyapi

import (
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey/apikeysrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

type APIKeyHandlers struct {
	service *apikeysrv.APIKeyService
}

func NewAPIKeyHandlers(service *apikeysrv.APIKeyService) *APIKeyHandlers {
	return &APIKeyHandlers{service: service}
}

// RegisterRoutes mounts the admin endpoints. Every route needs a super-secret admin key.
func (h *APIKeyHandlers) RegisterRoutes(router fiber.Router, mw *auth.RequestAuthMiddleware) {
	keys := router.Group("/api/v1/internal/api-keys", mw.Authenticate(), auth.RequireAccess(kernel.AccessAdmin))
	keys.Post("/", h.CreateKeySet)
	keys.Get("/", h.ListKeySets)
	keys.Patch("/:id", h.UpdateKeySet)
}

// CreateKeySet godoc
// POST /api/v1/internal/api-keys
func (h *APIKeyHandlers) CreateKeySet(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)

	var req apikey.CreateKeySetRequest
	if err := c.BodyParser(&req); err != nil {
		return apikey.ErrInvalidRequest().WithDetail("reason", "invalid JSON body")
	}

	created, err := h.service.CreateKeySet(c.UserContext(), ac.TenantID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListKeySets godoc
// GET /api/v1/internal/api-keys?page=1&page_size=50
func (h *APIKeyHandlers) ListKeySets(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)

	page, err := h.service.ListKeySets(c.UserContext(), ac.TenantID, kernel.PaginationOptions{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 50),
	})
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// UpdateKeySet godoc
// PATCH /api/v1/internal/api-keys/:id
func (h *APIKeyHandlers) UpdateKeySet(c *fiber.Ctx) error {
	ac, _ := auth.GetAuthContext(c)

	var req apikey.UpdateKeySetRequest
	if err := c.BodyParser(&req); err != nil {
		return apikey.ErrInvalidRequest().WithDetail("reason", "invalid JSON body")
	}

	dto, err := h.service.UpdateKeySet(c.UserContext(), ac.TenantID, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(dto)
}
