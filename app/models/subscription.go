package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	SubscriptionStatusActive          = "active"
	SubscriptionStatusSuspended       = "suspended"
	SubscriptionStatusCancelled       = "cancelled"
	SubscriptionStatusTrialing        = "trialing"
	SubscriptionStatusManualReview    = "manual_review"
	SubscriptionStatusPendingApproval = "pending_approval"
)

// Subscription is the per-workspace credit account. Balance and daily usage are
// only mutated through the billing service while the workspace row is locked.
type Subscription struct {
	WorkspaceID       string    `gorm:"type:char(36);primaryKey" json:"workspace_id"`
	PlanTier          string    `gorm:"type:varchar(20);not null;default:'free';index" json:"plan_tier" validate:"required,oneof=free starter growth pro enterprise"`
	Status            string    `gorm:"type:varchar(32);not null;default:'active';index" json:"status" validate:"required,oneof=active suspended cancelled trialing manual_review pending_approval"`
	Overdue           bool      `gorm:"not null;default:false" json:"overdue"`
	CreditsBalance    int64     `gorm:"not null;default:0" json:"credits_balance" validate:"gte=0"`
	DailyCreditsLimit int64     `gorm:"not null;default:0" json:"daily_credits_limit" validate:"gte=0"`
	CreditsUsedToday  int64     `gorm:"not null;default:0" json:"credits_used_today" validate:"gte=0"`
	LastResetAt       time.Time `gorm:"type:timestamp(6);not null" json:"last_reset_at"`
	APIKeyHash        string    `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix      string    `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	CreatedAt         time.Time `gorm:"type:timestamp(6);autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"type:timestamp(6);autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// IsActive reports whether the subscription status allows paid actions.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IssueAPIKey generates a new workspace API key, stores its hash and prefix on
// the struct and returns the raw key. Callers must persist the struct.
func (s *Subscription) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateSecretMaterial(workspaceKeyPrefix)
	if err != nil {
		return "", err
	}
	s.APIKeyHash = hash
	s.APIKeyPrefix = prefix
	return rawKey, nil
}

// HasActiveAPIKey reports whether the workspace has an API key configured
func (s *Subscription) HasActiveAPIKey() bool {
	return s != nil && s.APIKeyHash != ""
}
