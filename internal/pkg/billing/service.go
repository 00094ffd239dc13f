package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CreditGate/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultLedgerLimit = 50

// Service authorizes billable actions against a workspace's credit balance and
// keeps the ledger in sync with every balance change.
type Service struct {
	repo  Repository
	clock func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		clock: time.Now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// WithClock replaces the time source. Intended for tests and replay tooling.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

// now is UTC at the microsecond precision of the timestamp(6) columns, so a
// stored instant never rounds over midnight into the next accounting day.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// Repository returns the underlying repository.
func (s *Service) Repository() Repository {
	return s.repo
}

// Authorize checks whether the workspace may perform the action and debits its
// cost in the same atomic unit. Denials are returned as results, not errors.
func (s *Service) Authorize(ctx context.Context, workspaceID string, action ActionType) (*AuthorizationResult, error) {
	return s.authorize(ctx, workspaceID, action, "")
}

// AuthorizeDispatch authorizes an outgoing dispatch for one trigger and, on
// success, increments the trigger's usage counter within the same unit.
func (s *Service) AuthorizeDispatch(ctx context.Context, workspaceID, triggerID string) (*AuthorizationResult, error) {
	if strings.TrimSpace(triggerID) == "" {
		return nil, ErrTriggerNotFound
	}
	return s.authorize(ctx, workspaceID, ActionOutgoingDispatch, triggerID)
}

func (s *Service) authorize(ctx context.Context, workspaceID string, action ActionType, triggerID string) (*AuthorizationResult, error) {
	if !action.IsKnown() {
		log.Warnf("[Billing] Unknown action type %q for workspace %s, charging default cost %d", action, workspaceID, DefaultActionCost)
	}
	cost := action.Cost()
	now := s.now()

	var result *AuthorizationResult
	err := s.repo.WithWorkspace(ctx, workspaceID, func(tx WorkspaceTx) error {
		sub := tx.Subscription()
		reset := applyDailyReset(sub, now)

		if triggerID != "" {
			if _, err := tx.FindOutgoingTrigger(triggerID); err != nil {
				return err
			}
		}

		if reason := evaluate(sub, cost); reason != "" {
			result = &AuthorizationResult{
				Success:           false,
				Reason:            reason,
				ActionType:        action,
				Cost:              cost,
				RemainingCredits:  sub.CreditsBalance,
				CreditsUsedToday:  sub.CreditsUsedToday,
				DailyCreditsLimit: sub.DailyCreditsLimit,
			}
			if reset {
				return tx.SaveSubscription(sub)
			}
			return nil
		}

		debit(sub, cost)
		if err := tx.SaveSubscription(sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}

		entry := &models.CreditLedgerEntry{
			ID:           uuid.NewString(),
			WorkspaceID:  workspaceID,
			Kind:         models.LedgerKindDebit,
			ActionType:   string(action),
			Amount:       -cost,
			BalanceAfter: sub.CreditsBalance,
			TriggerID:    triggerID,
			CreatedAt:    now,
		}
		if err := tx.AppendLedgerEntry(entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}

		if triggerID != "" {
			if err := tx.RecordDispatch(triggerID, now); err != nil {
				return fmt.Errorf("record dispatch: %w", err)
			}
		}

		result = &AuthorizationResult{
			Success:           true,
			ActionType:        action,
			Cost:              cost,
			RemainingCredits:  sub.CreditsBalance,
			CreditsUsedToday:  sub.CreditsUsedToday,
			DailyCreditsLimit: sub.DailyCreditsLimit,
			AuthorizationID:   entry.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "allowed"
	if !result.Success {
		outcome = string(result.Reason)
		log.Infof("[Billing] Denied %s for workspace %s: %s", action, workspaceID, result.Reason)
	}
	metrics.Get().RecordAuthorization(string(action), outcome, cost)
	return result, nil
}

// Refund compensates a previous successful authorization. Each authorization
// can be refunded at most once.
func (s *Service) Refund(ctx context.Context, workspaceID, authorizationID string) (*RefundResult, error) {
	authorizationID = strings.TrimSpace(authorizationID)
	if authorizationID == "" {
		return nil, ErrEntryNotFound
	}
	now := s.now()

	var result *RefundResult
	err := s.repo.WithWorkspace(ctx, workspaceID, func(tx WorkspaceTx) error {
		entry, err := tx.FindLedgerEntry(authorizationID)
		if err != nil {
			return err
		}
		if entry.Kind != models.LedgerKindDebit {
			return ErrNotRefundable
		}
		if entry.RefundedAt != nil {
			return ErrAlreadyRefunded
		}

		sub := tx.Subscription()
		applyDailyReset(sub, now)

		credits := -entry.Amount
		sub.CreditsBalance += credits
		if !entry.CreatedAt.Before(startOfUTCDay(now)) {
			sub.CreditsUsedToday -= credits
			if sub.CreditsUsedToday < 0 {
				sub.CreditsUsedToday = 0
			}
		}
		if err := tx.SaveSubscription(sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		if err := tx.MarkEntryRefunded(entry.ID, now); err != nil {
			return fmt.Errorf("mark refunded: %w", err)
		}
		if err := tx.AppendLedgerEntry(&models.CreditLedgerEntry{
			ID:           uuid.NewString(),
			WorkspaceID:  workspaceID,
			Kind:         models.LedgerKindRefund,
			ActionType:   entry.ActionType,
			Amount:       credits,
			BalanceAfter: sub.CreditsBalance,
			TriggerID:    entry.TriggerID,
			ReferenceID:  entry.ID,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}

		result = &RefundResult{
			AuthorizationID:  entry.ID,
			Refunded:         credits,
			RemainingCredits: sub.CreditsBalance,
			CreditsUsedToday: sub.CreditsUsedToday,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().RecordRefund(result.Refunded)
	log.Infof("[Billing] Refunded %d credits to workspace %s (authorization %s)", result.Refunded, workspaceID, authorizationID)
	return result, nil
}

// Recharge adds purchased credits to a workspace.
func (s *Service) Recharge(ctx context.Context, workspaceID string, credits int64, reference string) (*models.CreditLedgerEntry, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}
	now := s.now()

	var entry *models.CreditLedgerEntry
	err := s.repo.WithWorkspace(ctx, workspaceID, func(tx WorkspaceTx) error {
		sub := tx.Subscription()
		sub.CreditsBalance += credits
		if err := tx.SaveSubscription(sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		entry = &models.CreditLedgerEntry{
			ID:           uuid.NewString(),
			WorkspaceID:  workspaceID,
			Kind:         models.LedgerKindRecharge,
			Amount:       credits,
			BalanceAfter: sub.CreditsBalance,
			ReferenceID:  strings.TrimSpace(reference),
			CreatedAt:    now,
		}
		return tx.AppendLedgerEntry(entry)
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().RecordRecharge(credits)
	return entry, nil
}

// CanCreateOutgoingTrigger reports whether another active outgoing trigger
// fits into the workspace's plan.
func (s *Service) CanCreateOutgoingTrigger(ctx context.Context, workspaceID string) (bool, error) {
	sub, err := s.repo.GetSubscription(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	active, err := s.repo.CountActiveOutgoingTriggers(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	return active < entitlements.LimitsFor(entitlements.NormalizePlan(sub.PlanTier)).MaxOutgoingTriggers, nil
}

// CanCreateIncomingTrigger reports whether another active incoming trigger
// fits into the workspace's plan.
func (s *Service) CanCreateIncomingTrigger(ctx context.Context, workspaceID string) (bool, error) {
	sub, err := s.repo.GetSubscription(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	active, err := s.repo.CountActiveIncomingTriggers(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	return active < entitlements.LimitsFor(entitlements.NormalizePlan(sub.PlanTier)).MaxIncomingTriggers, nil
}

// Usage returns the workspace's credit state. The daily reset is applied to
// the returned view only.
func (s *Service) Usage(ctx context.Context, workspaceID string) (*UsageSnapshot, error) {
	sub, err := s.repo.GetSubscription(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	applyDailyReset(sub, s.now())

	return &UsageSnapshot{
		WorkspaceID:       sub.WorkspaceID,
		PlanTier:          sub.PlanTier,
		Status:            sub.Status,
		Overdue:           sub.Overdue,
		CreditsBalance:    sub.CreditsBalance,
		CreditsUsedToday:  sub.CreditsUsedToday,
		DailyCreditsLimit: sub.DailyCreditsLimit,
		LastResetAt:       sub.LastResetAt,
		Limits:            entitlements.LimitsFor(entitlements.NormalizePlan(sub.PlanTier)),
	}, nil
}

// Ledger returns the most recent ledger entries of a workspace.
func (s *Service) Ledger(ctx context.Context, workspaceID string, limit int) ([]models.CreditLedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultLedgerLimit
	}
	if _, err := s.repo.GetSubscription(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerEntries(ctx, workspaceID, limit)
}

// OpenSubscription creates a new active workspace on the given plan and
// returns it with its raw API key. The key is not retrievable afterwards.
func (s *Service) OpenSubscription(ctx context.Context, planTier string, initialCredits int64) (*models.Subscription, string, error) {
	if !entitlements.IsKnownPlan(planTier) {
		return nil, "", ErrInvalidPlan
	}
	if initialCredits < 0 {
		return nil, "", ErrInvalidAmount
	}
	plan := entitlements.NormalizePlan(planTier)
	now := s.now()

	sub := &models.Subscription{
		WorkspaceID:       uuid.NewString(),
		PlanTier:          string(plan),
		Status:            models.SubscriptionStatusActive,
		CreditsBalance:    initialCredits,
		DailyCreditsLimit: entitlements.LimitsFor(plan).DailyCreditCap,
		LastResetAt:       now,
	}
	rawKey, err := sub.IssueAPIKey()
	if err != nil {
		return nil, "", err
	}
	if err := sub.Validate(); err != nil {
		return nil, "", err
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, "", err
	}

	if initialCredits > 0 {
		err := s.repo.WithWorkspace(ctx, sub.WorkspaceID, func(tx WorkspaceTx) error {
			return tx.AppendLedgerEntry(&models.CreditLedgerEntry{
				ID:           uuid.NewString(),
				WorkspaceID:  sub.WorkspaceID,
				Kind:         models.LedgerKindRecharge,
				Amount:       initialCredits,
				BalanceAfter: initialCredits,
				ReferenceID:  "initial",
				CreatedAt:    now,
			})
		})
		if err != nil {
			return nil, "", err
		}
	}

	log.Infof("[Billing] Opened workspace %s on plan %s with %d credits", sub.WorkspaceID, sub.PlanTier, initialCredits)
	return sub, rawKey, nil
}

// ChangePlan moves a workspace to another tier and re-derives its daily cap.
// Today's usage is kept. Triggers above a lower tier's limits stay in place;
// only new ones are gated.
func (s *Service) ChangePlan(ctx context.Context, workspaceID, planTier string) (*PlanChange, error) {
	if !entitlements.IsKnownPlan(planTier) {
		return nil, ErrInvalidPlan
	}
	plan := entitlements.NormalizePlan(planTier)

	var change PlanChange
	err := s.repo.WithWorkspace(ctx, workspaceID, func(tx WorkspaceTx) error {
		sub := tx.Subscription()
		applyDailyReset(sub, s.now())
		previous := entitlements.NormalizePlan(sub.PlanTier)
		sub.PlanTier = string(plan)
		sub.DailyCreditsLimit = entitlements.LimitsFor(plan).DailyCreditCap
		change = PlanChange{
			Subscription:     *sub,
			PreviousPlanTier: string(previous),
			Downgrade:        entitlements.Rank(plan) < entitlements.Rank(previous),
		}
		return tx.SaveSubscription(sub)
	})
	if err != nil {
		return nil, err
	}
	if change.Downgrade {
		log.Warnf("[Billing] Workspace %s downgraded from %s to %s", workspaceID, change.PreviousPlanTier, plan)
	}
	return &change, nil
}

// SetStanding updates a workspace's lifecycle status and overdue flag.
func (s *Service) SetStanding(ctx context.Context, workspaceID, status string, overdue bool) (*models.Subscription, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !isKnownStatus(status) {
		return nil, ErrInvalidStatus
	}

	var updated models.Subscription
	err := s.repo.WithWorkspace(ctx, workspaceID, func(tx WorkspaceTx) error {
		sub := tx.Subscription()
		sub.Status = status
		sub.Overdue = overdue
		updated = *sub
		return tx.SaveSubscription(sub)
	})
	if err != nil {
		return nil, err
	}
	if status != models.SubscriptionStatusActive || overdue {
		log.Warnf("[Billing] Workspace %s locked: status=%s overdue=%t", workspaceID, status, overdue)
	}
	return &updated, nil
}

func isKnownStatus(status string) bool {
	switch status {
	case models.SubscriptionStatusActive,
		models.SubscriptionStatusSuspended,
		models.SubscriptionStatusCancelled,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusManualReview,
		models.SubscriptionStatusPendingApproval:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err means the workspace, trigger or ledger entry
// does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrTriggerNotFound) || errors.Is(err, ErrEntryNotFound)
}
