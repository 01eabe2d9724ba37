package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/enrich"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Category is set for processing failures.
	Category enrich.Category `json:"category,omitempty"`
}

var categoryStatus = map[enrich.Category]int{
	enrich.CategoryInsufficientContent: fiber.StatusBadRequest,
	enrich.CategoryForbidden:           fiber.StatusForbidden,
	enrich.CategoryNotFound:            fiber.StatusNotFound,
	enrich.CategoryAIQuota:             fiber.StatusTooManyRequests,
	enrich.CategoryAIAuth:              fiber.StatusBadGateway,
	enrich.CategoryNetwork:             fiber.StatusBadGateway,
	enrich.CategoryModelUnavailable:    fiber.StatusServiceUnavailable,
	enrich.CategoryAITimeout:           fiber.StatusGatewayTimeout,
	enrich.CategoryUnknown:             fiber.StatusInternalServerError,
}

// StatusForCategory returns the HTTP status code a failure category is
// reported with.
func StatusForCategory(c enrich.Category) int {
	if status, ok := categoryStatus[c]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// handleError renders every error returned by a handler. Categorized
// processing failures keep their user-safe message; anything else not
// raised with fiber.NewError is logged and hidden behind a 500.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var perr *enrich.Error
	if errors.As(err, &perr) {
		return c.Status(StatusForCategory(perr.Category)).JSON(ErrorResponse{
			Error:    perr.Message,
			Category: perr.Category,
		})
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return c.Status(ferr.Code).JSON(ErrorResponse{Error: ferr.Message})
	}

	s.logger.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal server error"})
}
