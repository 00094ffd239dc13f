package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DestinationN8N              = "n8n"
	DestinationCustomWebhook    = "custom_webhook"
	DestinationSlack            = "slack"
	DestinationGoogleAppsScript = "google_apps_script"
)

const (
	RetryPolicyNone        = "none"
	RetryPolicyInstant     = "instant"
	RetryPolicyExponential = "exponential"
)

// Platform events an outgoing trigger can subscribe to.
const (
	EventLeadCreated     = "lead.created"
	EventLeadQualified   = "lead.qualified"
	EventCampaignSent    = "campaign.sent"
	EventMessageReceived = "message.received"
	EventCallCompleted   = "call.completed"
	EventMeetingBooked   = "meeting.booked"
)

// OutgoingTrigger broadcasts a platform event to an external destination.
type OutgoingTrigger struct {
	ID              string     `gorm:"type:char(36);primaryKey" json:"id"`
	WorkspaceID     string     `gorm:"type:char(36);not null;index:idx_outgoing_triggers_ws_event,priority:1;index:idx_outgoing_triggers_ws_status,priority:1" json:"workspace_id" validate:"required"`
	Name            string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	EventType       string     `gorm:"type:varchar(64);not null;index:idx_outgoing_triggers_ws_event,priority:2" json:"event_type" validate:"required,oneof=lead.created lead.qualified campaign.sent message.received call.completed meeting.booked"`
	DestinationType string     `gorm:"type:varchar(32);not null" json:"destination_type" validate:"required,oneof=n8n custom_webhook slack google_apps_script"`
	DestinationURL  string     `gorm:"type:varchar(500);not null" json:"destination_url" validate:"required,url,max=500"`
	Secret          string     `gorm:"type:varchar(100);not null" json:"-"`
	Status          string     `gorm:"type:varchar(16);not null;default:'active';index:idx_outgoing_triggers_ws_status,priority:2" json:"status" validate:"required,oneof=active paused error"`
	RetryPolicy     string     `gorm:"type:varchar(16);not null;default:'none'" json:"retry_policy" validate:"required,oneof=none instant exponential"`
	UsageCount      int64      `gorm:"not null;default:0" json:"usage_count"`
	LastDispatchAt  *time.Time `gorm:"type:timestamp(6);default:null" json:"last_dispatch_at,omitempty"`
	CreatedAt       time.Time  `gorm:"type:timestamp(6);autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"type:timestamp(6);autoUpdateTime" json:"updated_at"`
}

func (t *OutgoingTrigger) Validate() error {
	v := validator.New()

	return v.Struct(t)
}

// IsActive reports whether the trigger may receive dispatches.
func (t *OutgoingTrigger) IsActive() bool {
	return t.Status == TriggerStatusActive
}
