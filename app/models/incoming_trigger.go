package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	IncomingTypeLeadIngestion   = "lead_ingestion"
	IncomingTypeCampaignEvent   = "campaign_event"
	IncomingTypeExternalCRMPush = "external_crm_push"
	IncomingTypeCustomWebhook   = "custom_webhook"
)

const (
	TriggerStatusActive = "active"
	TriggerStatusPaused = "paused"
	TriggerStatusError  = "error"
)

// IncomingTrigger is an inbound webhook endpoint owned by a workspace.
// Only the bcrypt hash of the shared secret is stored.
type IncomingTrigger struct {
	ID                  string     `gorm:"type:char(36);primaryKey" json:"id"`
	WorkspaceID         string     `gorm:"type:char(36);not null;index" json:"workspace_id" validate:"required"`
	Name                string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	Type                string     `gorm:"type:varchar(32);not null" json:"type" validate:"required,oneof=lead_ingestion campaign_event external_crm_push custom_webhook"`
	Status              string     `gorm:"type:varchar(16);not null;default:'active';index" json:"status" validate:"required,oneof=active paused error"`
	WebhookToken        string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	SecretHash          string     `gorm:"type:varchar(100);not null" json:"-"`
	UsageCount          int64      `gorm:"not null;default:0" json:"usage_count"`
	ConsecutiveFailures int        `gorm:"not null;default:0" json:"consecutive_failures"`
	LastHitAt           *time.Time `gorm:"type:timestamp(6);default:null" json:"last_hit_at,omitempty"`
	CreatedAt           time.Time  `gorm:"type:timestamp(6);autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"type:timestamp(6);autoUpdateTime" json:"updated_at"`
}

func (t *IncomingTrigger) Validate() error {
	v := validator.New()

	return v.Struct(t)
}

// WebhookURL returns the public intake URL for this trigger.
func (t *IncomingTrigger) WebhookURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/hooks/" + t.WebhookToken
}

// IsActive reports whether deliveries are currently accepted.
func (t *IncomingTrigger) IsActive() bool {
	return t.Status == TriggerStatusActive
}
