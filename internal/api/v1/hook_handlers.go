package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditGate/internal/pkg/dispatch"
	"github.com/ManuelReschke/CreditGate/internal/pkg/intake"
)

// PostHook receives an incoming trigger delivery
func (s *APIServer) PostHook(c *fiber.Ctx) error {
	out, err := s.intake.HandleDelivery(c.UserContext(), intake.Delivery{
		Token:      c.Params("token"),
		Secret:     c.Get(dispatch.HeaderSecret),
		DeliveryID: c.Get("X-Delivery-ID"),
		Body:       append([]byte(nil), c.Body()...),
		RemoteIP:   c.IP(),
	})
	if err != nil {
		return handleServiceError(c, err, "webhook intake")
	}

	switch out.Status {
	case fiber.StatusAccepted, fiber.StatusOK:
		resp := HookResponse{
			Accepted:   true,
			Duplicate:  out.Duplicate,
			DeliveryID: out.DeliveryID,
		}
		if out.Authorization != nil {
			resp.AuthorizationID = out.Authorization.AuthorizationID
			remaining := out.Authorization.RemainingCredits
			resp.RemainingCredits = &remaining
		}
		return c.Status(out.Status).JSON(resp)
	case fiber.StatusForbidden, fiber.StatusPaymentRequired:
		return c.Status(out.Status).JSON(fiber.Map{
			"error":   out.Code,
			"code":    out.Code,
			"message": out.Message,
			"reason":  out.Authorization.Reason,
		})
	default:
		return writeError(c, out.Status, out.Code, out.Message)
	}
}
