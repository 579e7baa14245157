// Package errxfiber renders errx errors as fiber responses.
package errxfiber

import (
	"errors"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the fiber ErrorHandler shared by the server and handler tests.
// Server faults and assertions are logged with full detail and rendered opaque.
func ErrorHandler(c *fiber.Ctx, err error) error {
	requestID := c.GetRespHeader(fiber.HeaderXRequestID, c.Get(fiber.HeaderXRequestID))

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errx.HTTPErrorResponse{
			Error:     fe.Message,
			Code:      "HTTP_ERROR",
			Type:      string(errx.TypeValidation),
			Status:    fe.Code,
			RequestID: requestID,
		})
	}

	entry := logx.WithContext(c.UserContext()).WithFields(logx.Fields{
		"path":   c.Path(),
		"method": c.Method(),
	}).WithError(err)

	public := errx.Public(err)
	switch {
	case errx.IsAssertion(err):
		entry.Error("assertion failed")
	case public.Type.IsServerFault():
		entry.Error("request failed")
	default:
		entry.Debug("request rejected")
	}

	return c.Status(public.HTTPStatus).JSON(public.ToHTTPResponse(requestID))
}
