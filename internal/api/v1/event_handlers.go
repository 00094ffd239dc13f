package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/dispatch"
	"github.com/ManuelReschke/CreditGate/internal/pkg/workspacecontext"
)

// PostEvent broadcasts a platform event to every active outgoing trigger of
// the workspace subscribed to it. Each trigger is authorized and charged
// separately; a denial or failure for one trigger does not affect the others,
// and once the fan-out starts the response is always 202 with per-trigger
// results.
func (s *APIServer) PostEvent(c *fiber.Ctx) error {
	var req BroadcastRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage("{}")
	}
	if !json.Valid(req.Payload) {
		return badRequest(c, "payload must be valid JSON")
	}

	ctx := c.UserContext()
	workspaceID := workspacecontext.GetWorkspaceID(c)

	triggers, err := s.repos.OutgoingTrigger.ListActiveByEvent(ctx, workspaceID, req.EventType)
	if err != nil {
		return handleServiceError(c, err, "list outgoing triggers")
	}

	occurredAt := time.Now().UTC()
	results := make([]BroadcastResult, len(triggers))

	var g errgroup.Group
	g.SetLimit(s.config.BroadcastWorkers)
	for i := range triggers {
		i := i
		g.Go(func() error {
			results[i] = s.broadcastTo(ctx, workspaceID, &triggers[i], req, occurredAt)
			return nil
		})
	}
	_ = g.Wait()

	queued := 0
	for _, r := range results {
		if r.Queued {
			queued++
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(BroadcastResponse{
		EventType: req.EventType,
		Matched:   len(triggers),
		Queued:    queued,
		Results:   results,
	})
}

// broadcastTo authorizes and enqueues one dispatch.
func (s *APIServer) broadcastTo(ctx context.Context, workspaceID string, trigger *models.OutgoingTrigger, req BroadcastRequest, occurredAt time.Time) BroadcastResult {
	out := BroadcastResult{TriggerID: trigger.ID}

	auth, err := s.billing.AuthorizeDispatch(ctx, workspaceID, trigger.ID)
	if err != nil {
		if errors.Is(err, billing.ErrTriggerNotFound) {
			out.Error = "trigger_not_found"
			return out
		}
		log.Errorf("[API] Failed to authorize dispatch for trigger %s: %v", trigger.ID, err)
		out.Error = "authorization_failed"
		return out
	}
	if !auth.Success {
		out.Reason = auth.Reason
		return out
	}
	out.AuthorizationID = auth.AuthorizationID

	job, err := s.queue.Enqueue(ctx, &dispatch.Job{
		WorkspaceID:     workspaceID,
		TriggerID:       trigger.ID,
		AuthorizationID: auth.AuthorizationID,
		EventType:       req.EventType,
		Payload:         req.Payload,
		OccurredAt:      occurredAt,
	})
	if err != nil {
		log.Errorf("[API] Failed to enqueue dispatch for trigger %s: %v", trigger.ID, err)
		if _, rerr := s.billing.Refund(context.WithoutCancel(ctx), workspaceID, auth.AuthorizationID); rerr != nil {
			log.Errorf("[API] Failed to refund authorization %s after enqueue failure: %v", auth.AuthorizationID, rerr)
		}
		out.Error = "enqueue_failed"
		return out
	}

	out.Queued = true
	out.DispatchID = job.ID
	return out
}
