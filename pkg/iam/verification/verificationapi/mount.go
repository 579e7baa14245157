package verificationapi

import (
	"bytes"
	"encoding/json"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/gofiber/fiber/v2"
)

// codeRequest is the part of every redemption body the engine reads itself.
// Flow specific fields sit next to it in the same JSON object.
type codeRequest struct {
	Code   string          `json:"code"`
	Method json.RawMessage `json:"method"`
}

// Mount serves h at path: POST path consumes, POST path/check validates
// without consuming and POST path/details describes the code when the flow
// allows it.
func Mount[D, M, B, R any](router fiber.Router, path string, h *verification.Handler[D, M, B, R], handlers ...fiber.Handler) {
	g := router.Group(path, handlers...)

	g.Post("/", func(c *fiber.Ctx) error {
		req, err := parseConsume[B](c)
		if err != nil {
			return err
		}
		resp, err := h.Consume(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	g.Post("/check", func(c *fiber.Ctx) error {
		req, err := parseConsume[B](c)
		if err != nil {
			return err
		}
		if err := h.Check(c.UserContext(), req); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"is_code_valid": true})
	})

	if h.HasDetails() {
		g.Post("/details", func(c *fiber.Ctx) error {
			req, err := parseConsume[B](c)
			if err != nil {
				return err
			}
			details, err := h.Details(c.UserContext(), req)
			if err != nil {
				return err
			}
			return c.JSON(details)
		})
	}
}

func parseConsume[B any](c *fiber.Ctx) (verification.ConsumeRequest[B], error) {
	var req verification.ConsumeRequest[B]
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return req, iam.ErrUnauthorized()
	}

	raw := c.Body()
	var head codeRequest
	if err := json.Unmarshal(raw, &head); err != nil {
		return req, verification.ErrInvalidBody().WithDetail("reason", "invalid JSON body")
	}
	if head.Code == "" {
		return req, verification.ErrInvalidBody().WithDetail("reason", "code is required")
	}
	if err := json.Unmarshal(raw, &req.Body); err != nil {
		return req, verification.ErrInvalidBody().WithCause(err)
	}

	req.TenantID = ac.TenantID
	req.Code = head.Code
	if len(head.Method) > 0 && !bytes.Equal(head.Method, []byte("null")) {
		req.Method = head.Method
	}
	if ac.HasUser() {
		req.UserID = *ac.UserID
	}
	return req, nil
}
