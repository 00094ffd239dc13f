package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/metrics"
)

// TriggerSource loads the current state of an outgoing trigger.
type TriggerSource interface {
	GetByID(ctx context.Context, workspaceID, id string) (*models.OutgoingTrigger, error)
}

// Refunder compensates the authorization that paid for a dispatch.
type Refunder interface {
	Refund(ctx context.Context, workspaceID, authorizationID string) (*billing.RefundResult, error)
}

// Executor runs a single delivery attempt and settles terminal outcomes.
type Executor struct {
	triggers  TriggerSource
	refunder  Refunder
	deliverer Deliverer
	backoff   Backoff
}

// NewExecutor wires an executor.
func NewExecutor(triggers TriggerSource, refunder Refunder, deliverer Deliverer, backoff Backoff) *Executor {
	return &Executor{
		triggers:  triggers,
		refunder:  refunder,
		deliverer: deliverer,
		backoff:   backoff,
	}
}

// Attempt reloads the trigger, delivers the envelope once and decides the
// next step according to the trigger's retry policy.
func (e *Executor) Attempt(ctx context.Context, job *Job) Decision {
	trigger, err := e.triggers.GetByID(ctx, job.WorkspaceID, job.TriggerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, billing.ErrNotFound) {
			return Decision{Action: ActionCancel, Reason: "trigger deleted"}
		}
		// Storage hiccup counts as a failed attempt.
		log.Errorf("[Dispatch] Failed to load trigger %s for job %s: %v", job.TriggerID, job.ID, err)
		return PolicyExponential.withReason(job.RetryCount, e.backoff, err.Error())
	}
	if !trigger.IsActive() {
		return Decision{Action: ActionCancel, Reason: "trigger " + trigger.Status}
	}

	policy := ParsePolicy(trigger.RetryPolicy)

	req, err := BuildRequest(job, trigger)
	if err != nil {
		return Decision{Action: ActionGiveUp, Reason: err.Error()}
	}

	start := time.Now()
	err = e.deliverer.Deliver(ctx, req)
	metrics.Get().RecordDispatchAttempt(trigger.DestinationType, err == nil, time.Since(start))

	if err != nil {
		log.Warnf("[Dispatch] Attempt %d for job %s to trigger %s failed: %v", job.Attempts, job.ID, trigger.ID, err)
		return policy.withReason(job.RetryCount, e.backoff, err.Error())
	}
	return policy.Decide(true, job.RetryCount, e.backoff)
}

// Settle records the terminal outcome and refunds the authorization unless
// the job completed.
func (e *Executor) Settle(ctx context.Context, job *Job) {
	metrics.Get().RecordDispatchOutcome(string(job.Status))
	if job.Status == JobStatusCompleted || job.AuthorizationID == "" {
		return
	}

	res, err := e.refunder.Refund(ctx, job.WorkspaceID, job.AuthorizationID)
	if err != nil {
		if errors.Is(err, billing.ErrAlreadyRefunded) {
			return
		}
		log.Errorf("[Dispatch] Refund of authorization %s for job %s failed: %v", job.AuthorizationID, job.ID, err)
		return
	}
	log.Infof("[Dispatch] Refunded authorization %s for %s job %s (balance %d)", res.AuthorizationID, job.Status, job.ID, res.RemainingCredits)
}

func (p RetryPolicy) withReason(retriesDone int, b Backoff, reason string) Decision {
	d := p.Decide(false, retriesDone, b)
	d.Reason = reason
	return d
}
