package apiv1

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/intake"
)

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: code, Message: message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return writeError(c, fiber.StatusBadRequest, "bad_request", message)
}

// parseBody decodes and validates a JSON request body.
func (s *APIServer) parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := s.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(verrs[0].Field() + " failed '" + verrs[0].Tag() + "' validation")
		}
		return err
	}
	return nil
}

// handleServiceError maps domain and storage errors onto the JSON error body.
func handleServiceError(c *fiber.Ctx, err error, op string) error {
	switch {
	case errors.Is(err, billing.ErrTriggerNotFound):
		return writeError(c, fiber.StatusNotFound, "trigger_not_found", err.Error())
	case billing.IsNotFound(err), errors.Is(err, gorm.ErrRecordNotFound):
		return writeError(c, fiber.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, billing.ErrAlreadyRefunded):
		return writeError(c, fiber.StatusConflict, "already_refunded", err.Error())
	case errors.Is(err, billing.ErrNotRefundable):
		return writeError(c, fiber.StatusUnprocessableEntity, "not_refundable", err.Error())
	case errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrInvalidPlan),
		errors.Is(err, billing.ErrInvalidStatus):
		return badRequest(c, err.Error())
	case errors.Is(err, billing.ErrLimitReached):
		return writeError(c, fiber.StatusForbidden, "limit_reached", err.Error())
	case errors.Is(err, billing.ErrTriggerInactive):
		return writeError(c, fiber.StatusConflict, "trigger_inactive", err.Error())
	}
	log.Errorf("[API] %s failed: %v", op, err)
	return writeError(c, fiber.StatusInternalServerError, "internal_server_error", "Internal server error")
}

// denialStatus maps a denial reason onto its HTTP status and error code.
func denialStatus(reason billing.Reason) (int, string) {
	if reason.IsRevenueLock() {
		return fiber.StatusForbidden, intake.CodeRevenueLock
	}
	return fiber.StatusPaymentRequired, intake.CodePaymentRequired
}
