package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/app/repository"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/metrics"
)

const (
	DefaultFailureThreshold = 5
	maxDeliveryIDLength     = 191

	CodeTriggerNotFound  = "trigger_not_found"
	CodeTriggerInactive  = "trigger_inactive"
	CodeInvalidSignature = "invalid_signature"
	CodeInvalidPayload   = "invalid_payload"
	CodeRevenueLock      = "REVENUE_LOCK"
	CodePaymentRequired  = "payment_required"
	CodeDuplicate        = "duplicate"
	CodeAccepted         = "accepted"
)

// Delivery is one inbound webhook request.
type Delivery struct {
	Token      string
	Secret     string
	DeliveryID string
	Body       []byte
	RemoteIP   string
}

// Outcome is the transport-independent result of a delivery.
type Outcome struct {
	Status        int
	Code          string
	Message       string
	TriggerID     string
	WorkspaceID   string
	DeliveryID    string
	EventID       uint
	Duplicate     bool
	Authorization *billing.AuthorizationResult
	// Err classifies a rejection (billing.ErrInvalidSignature and friends).
	Err error
}

// UsageCounter counts accepted hits per trigger.
type UsageCounter func(ctx context.Context, triggerID string) error

// Service accepts incoming trigger deliveries.
type Service struct {
	triggers         repository.IncomingTriggerRepository
	events           repository.TriggerEventRepository
	billing          *billing.Service
	countUsage       UsageCounter
	failureThreshold int
	now              func() time.Time
}

func NewService(triggers repository.IncomingTriggerRepository, events repository.TriggerEventRepository, billingService *billing.Service, countUsage UsageCounter, failureThreshold int) *Service {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	return &Service{
		triggers:         triggers,
		events:           events,
		billing:          billingService,
		countUsage:       countUsage,
		failureThreshold: failureThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// DeliveryIDFor returns the sender-supplied id or a content hash of the body.
func DeliveryIDFor(header string, body []byte) string {
	id := strings.TrimSpace(header)
	if id != "" {
		if len(id) > maxDeliveryIDLength {
			id = id[:maxDeliveryIDLength]
		}
		return id
	}
	sum := sha256.Sum256(body)
	return "hash:" + hex.EncodeToString(sum[:])
}

// HandleDelivery validates, deduplicates and authorizes one delivery. Only
// storage faults are returned as errors; every business outcome is an Outcome.
//
// A delivery is charged at most once. Redelivering an id that was denied runs
// the authorization again, so a sender can retry after a top-up.
func (s *Service) HandleDelivery(ctx context.Context, d Delivery) (*Outcome, error) {
	trigger, err := s.triggers.GetByWebhookToken(ctx, d.Token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.reject(fiber.StatusNotFound, CodeTriggerNotFound, "Unknown webhook", nil, billing.ErrTriggerNotFound), nil
		}
		return nil, fmt.Errorf("load trigger: %w", err)
	}

	if !models.CheckTriggerSecret(d.Secret, trigger.SecretHash) {
		log.Warnf("[Intake] Security: invalid secret for trigger %s (workspace %s) from %s", trigger.ID, trigger.WorkspaceID, d.RemoteIP)
		updated, ferr := s.triggers.RecordFailure(ctx, trigger.ID, s.failureThreshold)
		if ferr != nil {
			log.Errorf("[Intake] Failed to record secret failure for trigger %s: %v", trigger.ID, ferr)
		} else if updated.Status == models.TriggerStatusError && trigger.Status != models.TriggerStatusError {
			log.Warnf("[Intake] Trigger %s disabled after %d consecutive secret failures", trigger.ID, updated.ConsecutiveFailures)
		}
		return s.reject(fiber.StatusUnauthorized, CodeInvalidSignature, "Invalid trigger secret", trigger, billing.ErrInvalidSignature), nil
	}

	if !trigger.IsActive() {
		return s.reject(fiber.StatusConflict, CodeTriggerInactive, "Trigger is "+trigger.Status, trigger, billing.ErrTriggerInactive), nil
	}

	if !json.Valid(d.Body) {
		return s.reject(fiber.StatusBadRequest, CodeInvalidPayload, "Body must be valid JSON", trigger, nil), nil
	}

	deliveryID := DeliveryIDFor(d.DeliveryID, d.Body)
	created, event, err := s.events.CreateIfNotExists(ctx, &models.TriggerEvent{
		TriggerID:      trigger.ID,
		WorkspaceID:    trigger.WorkspaceID,
		DeliveryID:     deliveryID,
		PayloadJSON:    string(d.Body),
		SignatureValid: true,
	})
	if err != nil {
		return nil, fmt.Errorf("record delivery: %w", err)
	}
	if !created && event.Authorized {
		return s.duplicate(trigger, event), nil
	}

	res, err := s.billing.Authorize(ctx, trigger.WorkspaceID, billing.ActionTriggerHit)
	if err != nil {
		return nil, fmt.Errorf("authorize trigger hit: %w", err)
	}

	out := &Outcome{
		TriggerID:     trigger.ID,
		WorkspaceID:   trigger.WorkspaceID,
		DeliveryID:    deliveryID,
		EventID:       event.ID,
		Authorization: res,
	}

	if !res.Success {
		if merr := s.events.MarkDenied(ctx, event.ID, string(res.Reason)); merr != nil {
			log.Errorf("[Intake] Failed to mark event %d: %v", event.ID, merr)
		}
		if res.Reason.IsRevenueLock() {
			out.Status, out.Code = fiber.StatusForbidden, CodeRevenueLock
		} else {
			out.Status, out.Code = fiber.StatusPaymentRequired, CodePaymentRequired
		}
		out.Message = string(res.Reason)
		metrics.Get().RecordIntake(out.Code)
		log.Infof("[Intake] Delivery %s for trigger %s denied: %s", deliveryID, trigger.ID, res.Reason)
		return out, nil
	}

	claimed, err := s.events.MarkAuthorized(ctx, event.ID, res.AuthorizationID)
	if err != nil || !claimed {
		s.release(ctx, trigger.WorkspaceID, res.AuthorizationID)
		if err != nil {
			return nil, fmt.Errorf("mark event %d: %w", event.ID, err)
		}
		return s.duplicate(trigger, event), nil
	}

	if err := s.triggers.RecordSuccess(ctx, trigger.ID, s.now()); err != nil {
		log.Errorf("[Intake] Failed to record hit for trigger %s: %v", trigger.ID, err)
	}
	if s.countUsage != nil {
		if err := s.countUsage(ctx, trigger.ID); err != nil {
			log.Errorf("[Intake] Failed to count usage for trigger %s: %v", trigger.ID, err)
		}
	}

	out.Status, out.Code, out.Message = fiber.StatusAccepted, CodeAccepted, "Delivery accepted"
	metrics.Get().RecordIntake(CodeAccepted)
	return out, nil
}

// release refunds a debit that lost the race for its delivery.
func (s *Service) release(ctx context.Context, workspaceID, authorizationID string) {
	if _, err := s.billing.Refund(context.WithoutCancel(ctx), workspaceID, authorizationID); err != nil {
		log.Errorf("[Intake] Failed to refund authorization %s: %v", authorizationID, err)
	}
}

func (s *Service) duplicate(trigger *models.IncomingTrigger, event *models.TriggerEvent) *Outcome {
	metrics.Get().RecordIntake(CodeDuplicate)
	return &Outcome{
		Status:      fiber.StatusOK,
		Code:        CodeDuplicate,
		Message:     "Delivery already processed",
		TriggerID:   trigger.ID,
		WorkspaceID: trigger.WorkspaceID,
		DeliveryID:  event.DeliveryID,
		EventID:     event.ID,
		Duplicate:   true,
	}
}

func (s *Service) reject(status int, code, message string, trigger *models.IncomingTrigger, cause error) *Outcome {
	metrics.Get().RecordIntake(code)
	out := &Outcome{Status: status, Code: code, Message: message, Err: cause}
	if trigger != nil {
		out.TriggerID = trigger.ID
		out.WorkspaceID = trigger.WorkspaceID
	}
	return out
}
