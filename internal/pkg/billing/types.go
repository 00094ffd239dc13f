package billing

import (
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/entitlements"
)

// Reason is the machine-readable cause of a denied authorization.
type Reason string

const (
	ReasonSubscriptionInactive Reason = "SubscriptionInactive"
	ReasonOverdue              Reason = "Overdue"
	ReasonInsufficientCredits  Reason = "InsufficientCredits"
	ReasonDailyLimitExceeded   Reason = "DailyLimitExceeded"
)

// IsRevenueLock reports whether the denial is caused by account standing
// rather than by a lack of credits.
func (r Reason) IsRevenueLock() bool {
	return r == ReasonSubscriptionInactive || r == ReasonOverdue
}

// AuthorizationResult is returned for every authorization attempt. A denial is
// a normal result, never an error.
type AuthorizationResult struct {
	Success           bool       `json:"success"`
	Reason            Reason     `json:"reason,omitempty"`
	ActionType        ActionType `json:"action_type"`
	Cost              int64      `json:"cost"`
	RemainingCredits  int64      `json:"remaining_credits"`
	CreditsUsedToday  int64      `json:"credits_used_today"`
	DailyCreditsLimit int64      `json:"daily_credits_limit"`
	AuthorizationID   string     `json:"authorization_id,omitempty"`
}

// RefundResult describes a compensated authorization.
type RefundResult struct {
	AuthorizationID  string `json:"authorization_id"`
	Refunded         int64  `json:"refunded"`
	RemainingCredits int64  `json:"remaining_credits"`
	CreditsUsedToday int64  `json:"credits_used_today"`
}

// UsageSnapshot is a read-only view of a workspace's credit state with the
// daily reset applied.
type UsageSnapshot struct {
	WorkspaceID       string              `json:"workspace_id"`
	PlanTier          string              `json:"plan_tier"`
	Status            string              `json:"status"`
	Overdue           bool                `json:"overdue"`
	CreditsBalance    int64               `json:"credits_balance"`
	CreditsUsedToday  int64               `json:"credits_used_today"`
	DailyCreditsLimit int64               `json:"daily_credits_limit"`
	LastResetAt       time.Time           `json:"last_reset_at"`
	Limits            entitlements.Limits `json:"limits"`
}

// PlanChange is the subscription after a tier change.
type PlanChange struct {
	models.Subscription
	PreviousPlanTier string `json:"previous_plan_tier"`
	Downgrade        bool   `json:"downgrade"`
}
