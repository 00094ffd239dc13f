package models

import "time"

// TriggerEvent stores an incoming webhook delivery with deduplication
// metadata so a redelivered payload is never charged twice.
type TriggerEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TriggerID       string    `gorm:"type:char(36);not null;index:ux_trigger_events_trigger_delivery,unique,priority:1" json:"trigger_id"`
	WorkspaceID     string    `gorm:"type:char(36);not null;index" json:"workspace_id"`
	DeliveryID      string    `gorm:"type:varchar(191);not null;index:ux_trigger_events_trigger_delivery,unique,priority:2" json:"delivery_id"`
	PayloadJSON     string    `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool      `gorm:"default:false;index" json:"signature_valid"`
	Authorized      bool      `gorm:"default:false" json:"authorized"`
	Reason          string    `gorm:"type:varchar(64);not null;default:''" json:"reason,omitempty"`
	AuthorizationID string    `gorm:"type:varchar(36);not null;default:''" json:"authorization_id,omitempty"`
	CreatedAt       time.Time `gorm:"type:timestamp(6);autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"type:timestamp(6);autoUpdateTime" json:"updated_at"`
}
