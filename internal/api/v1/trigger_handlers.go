package apiv1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/workspacecontext"
)

// ListIncomingTriggers returns the workspace's incoming triggers
func (s *APIServer) ListIncomingTriggers(c *fiber.Ctx) error {
	triggers, err := s.repos.IncomingTrigger.ListByWorkspace(c.UserContext(), workspacecontext.GetWorkspaceID(c))
	if err != nil {
		return handleServiceError(c, err, "list incoming triggers")
	}
	out := make([]IncomingTriggerResponse, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, IncomingTriggerResponse{IncomingTrigger: t, WebhookURL: t.WebhookURL(s.config.PublicBaseURL)})
	}
	return c.JSON(fiber.Map{"triggers": out})
}

// PostIncomingTrigger creates an incoming trigger if the plan allows another
// active one. The secret is only returned in this response.
func (s *APIServer) PostIncomingTrigger(c *fiber.Ctx) error {
	var req CreateIncomingTriggerRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.UserContext()
	workspaceID := workspacecontext.GetWorkspaceID(c)

	ok, err := s.billing.CanCreateIncomingTrigger(ctx, workspaceID)
	if err != nil {
		return handleServiceError(c, err, "incoming trigger limit")
	}
	if !ok {
		return handleServiceError(c, billing.ErrLimitReached, "create incoming trigger")
	}

	secret := req.Secret
	if secret == "" {
		if secret, err = models.GenerateTriggerSecret(); err != nil {
			return handleServiceError(c, err, "generate trigger secret")
		}
	}
	hash, err := models.HashTriggerSecret(secret)
	if err != nil {
		return handleServiceError(c, err, "hash trigger secret")
	}
	token, err := models.GenerateWebhookToken()
	if err != nil {
		return handleServiceError(c, err, "generate webhook token")
	}

	trigger := &models.IncomingTrigger{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		Name:         req.Name,
		Type:         req.Type,
		Status:       models.TriggerStatusActive,
		WebhookToken: token,
		SecretHash:   hash,
	}
	if err := trigger.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.repos.IncomingTrigger.Create(ctx, trigger); err != nil {
		return handleServiceError(c, err, "create incoming trigger")
	}

	log.Infof("[API] Workspace %s created incoming trigger %s (%s)", workspaceID, trigger.ID, trigger.Type)
	return c.Status(fiber.StatusCreated).JSON(IncomingTriggerResponse{
		IncomingTrigger: *trigger,
		WebhookURL:      trigger.WebhookURL(s.config.PublicBaseURL),
		Secret:          secret,
	})
}

// PatchIncomingTrigger pauses or resumes a trigger. Resuming counts against
// the plan limit like a creation.
func (s *APIServer) PatchIncomingTrigger(c *fiber.Ctx) error {
	var req UpdateTriggerStatusRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.UserContext()
	workspaceID := workspacecontext.GetWorkspaceID(c)
	id := c.Params("id")

	current, err := s.repos.IncomingTrigger.GetByID(ctx, workspaceID, id)
	if err != nil {
		return handleServiceError(c, err, "load incoming trigger")
	}
	if req.Status == models.TriggerStatusActive && !current.IsActive() {
		ok, err := s.billing.CanCreateIncomingTrigger(ctx, workspaceID)
		if err != nil {
			return handleServiceError(c, err, "incoming trigger limit")
		}
		if !ok {
			return handleServiceError(c, billing.ErrLimitReached, "resume incoming trigger")
		}
	}

	if err := s.repos.IncomingTrigger.UpdateStatus(ctx, workspaceID, id, req.Status); err != nil {
		return handleServiceError(c, err, "update incoming trigger")
	}
	updated, err := s.repos.IncomingTrigger.GetByID(ctx, workspaceID, id)
	if err != nil {
		return handleServiceError(c, err, "load incoming trigger")
	}
	return c.JSON(IncomingTriggerResponse{IncomingTrigger: *updated, WebhookURL: updated.WebhookURL(s.config.PublicBaseURL)})
}

// DeleteIncomingTrigger removes a trigger; its webhook URL stops resolving
func (s *APIServer) DeleteIncomingTrigger(c *fiber.Ctx) error {
	if err := s.repos.IncomingTrigger.Delete(c.UserContext(), workspacecontext.GetWorkspaceID(c), c.Params("id")); err != nil {
		return handleServiceError(c, err, "delete incoming trigger")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListOutgoingTriggers returns the workspace's outgoing triggers
func (s *APIServer) ListOutgoingTriggers(c *fiber.Ctx) error {
	triggers, err := s.repos.OutgoingTrigger.ListByWorkspace(c.UserContext(), workspacecontext.GetWorkspaceID(c))
	if err != nil {
		return handleServiceError(c, err, "list outgoing triggers")
	}
	out := make([]OutgoingTriggerResponse, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, OutgoingTriggerResponse{OutgoingTrigger: t})
	}
	return c.JSON(fiber.Map{"triggers": out})
}

// PostOutgoingTrigger creates an outgoing trigger if the plan allows another
// active one. The signing secret is only returned in this response.
func (s *APIServer) PostOutgoingTrigger(c *fiber.Ctx) error {
	var req CreateOutgoingTriggerRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.UserContext()
	workspaceID := workspacecontext.GetWorkspaceID(c)

	ok, err := s.billing.CanCreateOutgoingTrigger(ctx, workspaceID)
	if err != nil {
		return handleServiceError(c, err, "outgoing trigger limit")
	}
	if !ok {
		return handleServiceError(c, billing.ErrLimitReached, "create outgoing trigger")
	}

	secret := req.Secret
	if secret == "" {
		if secret, err = models.GenerateTriggerSecret(); err != nil {
			return handleServiceError(c, err, "generate trigger secret")
		}
	}
	policy := req.RetryPolicy
	if policy == "" {
		policy = models.RetryPolicyNone
	}

	trigger := &models.OutgoingTrigger{
		ID:              uuid.NewString(),
		WorkspaceID:     workspaceID,
		Name:            req.Name,
		EventType:       req.EventType,
		DestinationType: req.DestinationType,
		DestinationURL:  req.DestinationURL,
		Secret:          secret,
		Status:          models.TriggerStatusActive,
		RetryPolicy:     policy,
	}
	if err := trigger.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.repos.OutgoingTrigger.Create(ctx, trigger); err != nil {
		return handleServiceError(c, err, "create outgoing trigger")
	}

	log.Infof("[API] Workspace %s created outgoing trigger %s (%s -> %s)", workspaceID, trigger.ID, trigger.EventType, trigger.DestinationType)
	return c.Status(fiber.StatusCreated).JSON(OutgoingTriggerResponse{OutgoingTrigger: *trigger, Secret: secret})
}

// PatchOutgoingTrigger pauses or resumes a trigger. Pausing cancels queued
// retries on their next attempt.
func (s *APIServer) PatchOutgoingTrigger(c *fiber.Ctx) error {
	var req UpdateTriggerStatusRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.UserContext()
	workspaceID := workspacecontext.GetWorkspaceID(c)
	id := c.Params("id")

	current, err := s.repos.OutgoingTrigger.GetByID(ctx, workspaceID, id)
	if err != nil {
		return handleServiceError(c, err, "load outgoing trigger")
	}
	if req.Status == models.TriggerStatusActive && !current.IsActive() {
		ok, err := s.billing.CanCreateOutgoingTrigger(ctx, workspaceID)
		if err != nil {
			return handleServiceError(c, err, "outgoing trigger limit")
		}
		if !ok {
			return handleServiceError(c, billing.ErrLimitReached, "resume outgoing trigger")
		}
	}

	if err := s.repos.OutgoingTrigger.UpdateStatus(ctx, workspaceID, id, req.Status); err != nil {
		return handleServiceError(c, err, "update outgoing trigger")
	}
	updated, err := s.repos.OutgoingTrigger.GetByID(ctx, workspaceID, id)
	if err != nil {
		return handleServiceError(c, err, "load outgoing trigger")
	}
	return c.JSON(OutgoingTriggerResponse{OutgoingTrigger: *updated})
}

// DeleteOutgoingTrigger removes a trigger; queued dispatches are cancelled
func (s *APIServer) DeleteOutgoingTrigger(c *fiber.Ctx) error {
	if err := s.repos.OutgoingTrigger.Delete(c.UserContext(), workspacecontext.GetWorkspaceID(c), c.Params("id")); err != nil {
		return handleServiceError(c, err, "delete outgoing trigger")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
