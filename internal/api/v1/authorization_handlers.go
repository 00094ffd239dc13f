package apiv1

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CreditGate/internal/pkg/security"
	"github.com/ManuelReschke/CreditGate/internal/pkg/workspacecontext"
)

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetPricing returns the static action pricing and plan limit tables
func (s *APIServer) GetPricing(c *fiber.Ctx) error {
	plans := make(map[entitlements.Plan]entitlements.Limits)
	for _, p := range entitlements.Plans() {
		plans[p] = entitlements.LimitsFor(p)
	}
	return c.JSON(PricingResponse{Actions: billing.PricingTable(), Plans: plans})
}

// PostAuthorization checks solvency and debits the action cost. Granted
// authorizations carry a signed token that can later be used for a refund.
func (s *APIServer) PostAuthorization(c *fiber.Ctx) error {
	var req AuthorizeRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	workspaceID := workspacecontext.GetWorkspaceID(c)

	res, err := s.billing.Authorize(c.UserContext(), workspaceID, billing.NormalizeAction(req.ActionType))
	if err != nil {
		return handleServiceError(c, err, "authorize")
	}

	if !res.Success {
		status, code := denialStatus(res.Reason)
		return c.Status(status).JSON(fiber.Map{
			"error":         code,
			"message":       string(res.Reason),
			"authorization": res,
		})
	}

	token, err := security.GenerateAuthorizationToken(workspaceID, res.AuthorizationID, string(res.ActionType), res.Cost, s.config.TokenTTL, s.config.TokenSecret)
	if err != nil {
		// The debit stands; the caller can still refund through the admin path.
		log.Errorf("[API] Failed to sign authorization token for %s: %v", res.AuthorizationID, err)
	}
	return c.Status(fiber.StatusOK).JSON(AuthorizeResponse{AuthorizationResult: res, Token: token})
}

// PostRefund compensates a previous authorization identified by its token.
func (s *APIServer) PostRefund(c *fiber.Ctx) error {
	var req RefundRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	claims, err := security.VerifyAuthorizationToken(req.Token, s.config.TokenSecret)
	if err != nil {
		return writeError(c, fiber.StatusUnauthorized, "invalid_token", err.Error())
	}

	res, err := s.billing.Refund(c.UserContext(), claims.WorkspaceID, claims.AuthorizationID)
	if err != nil {
		return handleServiceError(c, err, "refund")
	}
	return c.JSON(res)
}

// GetUsage returns the workspace balance, today's usage and plan limits
func (s *APIServer) GetUsage(c *fiber.Ctx) error {
	usage, err := s.billing.Usage(c.UserContext(), workspacecontext.GetWorkspaceID(c))
	if err != nil {
		return handleServiceError(c, err, "usage")
	}
	return c.JSON(usage)
}

// GetLedger returns the most recent ledger entries, newest first
func (s *APIServer) GetLedger(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = v
	}
	entries, err := s.billing.Ledger(c.UserContext(), workspacecontext.GetWorkspaceID(c), limit)
	if err != nil {
		return handleServiceError(c, err, "ledger")
	}
	return c.JSON(fiber.Map{"entries": entries})
}
