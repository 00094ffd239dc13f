package apiv1

import (
	"encoding/json"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CreditGate/internal/pkg/statistics"
)

// Pong is the ping response
type Pong struct {
	Ping string `json:"ping"`
}

// ErrorResponse is the error body shape of every endpoint
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type PricingResponse struct {
	Actions map[billing.ActionType]int64              `json:"actions"`
	Plans   map[entitlements.Plan]entitlements.Limits `json:"plans"`
}

type AuthorizeRequest struct {
	ActionType string `json:"action_type" validate:"required,max=64"`
}

type AuthorizeResponse struct {
	*billing.AuthorizationResult
	Token string `json:"token,omitempty"`
}

type RefundRequest struct {
	Token string `json:"token" validate:"required"`
}

type CreateIncomingTriggerRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=150"`
	Type   string `json:"type" validate:"required,oneof=lead_ingestion campaign_event external_crm_push custom_webhook"`
	Secret string `json:"secret" validate:"omitempty,min=16,max=72"`
}

type IncomingTriggerResponse struct {
	models.IncomingTrigger
	WebhookURL string `json:"webhook_url"`
	Secret     string `json:"secret,omitempty"`
}

type CreateOutgoingTriggerRequest struct {
	Name            string `json:"name" validate:"required,min=1,max=150"`
	EventType       string `json:"event_type" validate:"required"`
	DestinationType string `json:"destination_type" validate:"required"`
	DestinationURL  string `json:"destination_url" validate:"required,url,max=500"`
	RetryPolicy     string `json:"retry_policy" validate:"omitempty,oneof=none instant exponential"`
	Secret          string `json:"secret" validate:"omitempty,min=16,max=100"`
}

type OutgoingTriggerResponse struct {
	models.OutgoingTrigger
	Secret string `json:"secret,omitempty"`
}

type UpdateTriggerStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused"`
}

type BroadcastRequest struct {
	EventType string          `json:"event_type" validate:"required"`
	Payload   json.RawMessage `json:"payload"`
}

type BroadcastResult struct {
	TriggerID       string         `json:"trigger_id"`
	Queued          bool           `json:"queued"`
	DispatchID      string         `json:"dispatch_id,omitempty"`
	AuthorizationID string         `json:"authorization_id,omitempty"`
	Reason          billing.Reason `json:"reason,omitempty"`
	Error           string         `json:"error,omitempty"`
}

type BroadcastResponse struct {
	EventType string            `json:"event_type"`
	Matched   int               `json:"matched"`
	Queued    int               `json:"queued"`
	Results   []BroadcastResult `json:"results"`
}

// StatsResponse is the platform snapshot plus live dispatch job counts.
type StatsResponse struct {
	*statistics.Snapshot
	Dispatch map[string]int64 `json:"dispatch,omitempty"`
}

type OpenWorkspaceRequest struct {
	PlanTier       string `json:"plan_tier" validate:"required"`
	InitialCredits int64  `json:"initial_credits" validate:"gte=0"`
}

type OpenWorkspaceResponse struct {
	WorkspaceID  string               `json:"workspace_id"`
	APIKey       string               `json:"api_key"`
	Subscription *models.Subscription `json:"subscription"`
}

type RechargeRequest struct {
	Credits   int64  `json:"credits" validate:"gt=0"`
	Reference string `json:"reference" validate:"max=100"`
}

type ChangePlanRequest struct {
	PlanTier string `json:"plan_tier" validate:"required"`
}

type SetStandingRequest struct {
	Status  string `json:"status" validate:"required"`
	Overdue bool   `json:"overdue"`
}

type RotateKeyResponse struct {
	WorkspaceID  string `json:"workspace_id"`
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

type HookResponse struct {
	Accepted         bool           `json:"accepted"`
	Duplicate        bool           `json:"duplicate,omitempty"`
	Code             string         `json:"code,omitempty"`
	Reason           billing.Reason `json:"reason,omitempty"`
	AuthorizationID  string         `json:"authorization_id,omitempty"`
	RemainingCredits *int64         `json:"remaining_credits,omitempty"`
	DeliveryID       string         `json:"delivery_id,omitempty"`
}
