package apiv1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditGate/app/models"
)

// PostWorkspace opens a workspace subscription and returns its API key once
func (s *APIServer) PostWorkspace(c *fiber.Ctx) error {
	var req OpenWorkspaceRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	sub, rawKey, err := s.billing.OpenSubscription(c.UserContext(), req.PlanTier, req.InitialCredits)
	if err != nil {
		return handleServiceError(c, err, "open workspace")
	}
	return c.Status(fiber.StatusCreated).JSON(OpenWorkspaceResponse{
		WorkspaceID:  sub.WorkspaceID,
		APIKey:       rawKey,
		Subscription: sub,
	})
}

// GetWorkspace returns the usage view of any workspace
func (s *APIServer) GetWorkspace(c *fiber.Ctx) error {
	usage, err := s.billing.Usage(c.UserContext(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err, "workspace usage")
	}
	return c.JSON(usage)
}

// PostWorkspaceCredits tops up a workspace balance
func (s *APIServer) PostWorkspaceCredits(c *fiber.Ctx) error {
	var req RechargeRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	entry, err := s.billing.Recharge(c.UserContext(), c.Params("id"), req.Credits, req.Reference)
	if err != nil {
		return handleServiceError(c, err, "recharge")
	}
	return c.JSON(entry)
}

// PutWorkspacePlan moves a workspace to another plan tier
func (s *APIServer) PutWorkspacePlan(c *fiber.Ctx) error {
	var req ChangePlanRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	change, err := s.billing.ChangePlan(c.UserContext(), c.Params("id"), req.PlanTier)
	if err != nil {
		return handleServiceError(c, err, "change plan")
	}
	return c.JSON(change)
}

// PutWorkspaceStanding updates subscription status and the overdue flag
func (s *APIServer) PutWorkspaceStanding(c *fiber.Ctx) error {
	var req SetStandingRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	sub, err := s.billing.SetStanding(c.UserContext(), c.Params("id"), req.Status, req.Overdue)
	if err != nil {
		return handleServiceError(c, err, "set standing")
	}
	return c.JSON(sub)
}

// PostWorkspaceAPIKey rotates the workspace API key; the old key stops working immediately
func (s *APIServer) PostWorkspaceAPIKey(c *fiber.Ctx) error {
	ctx := c.UserContext()
	workspaceID := c.Params("id")

	sub, err := s.repos.Subscription.GetByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return handleServiceError(c, err, "load workspace")
	}
	rotated := models.Subscription{WorkspaceID: sub.WorkspaceID}
	rawKey, err := rotated.IssueAPIKey()
	if err != nil {
		return handleServiceError(c, err, "issue api key")
	}
	if err := s.repos.Subscription.UpdateAPIKey(ctx, workspaceID, rotated.APIKeyHash, rotated.APIKeyPrefix); err != nil {
		return handleServiceError(c, err, "rotate api key")
	}

	log.Infof("[API] Rotated API key for workspace %s", workspaceID)
	return c.JSON(RotateKeyResponse{WorkspaceID: workspaceID, APIKey: rawKey, APIKeyPrefix: rotated.APIKeyPrefix})
}

// GetStats returns platform-wide workspace, trigger and credit totals
func (s *APIServer) GetStats(c *fiber.Ctx) error {
	if s.stats == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "stats_unavailable", "Statistics are not configured")
	}
	snap, err := s.stats.Snapshot(c.UserContext())
	if err != nil {
		return handleServiceError(c, err, "statistics")
	}
	resp := StatsResponse{Snapshot: snap}
	if s.jobs != nil {
		counts, err := s.jobs.Stats(c.UserContext())
		if err != nil {
			log.Warnf("[API] Dispatch stats unavailable: %v", err)
		} else {
			resp.Dispatch = make(map[string]int64, len(counts))
			for status, n := range counts {
				resp.Dispatch[string(status)] = n
			}
		}
	}
	return c.JSON(resp)
}
