package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"gorm.io/gorm"
)

// SubscriptionRepository defines read access to workspaces outside of the
// billing critical section (API key lookups, key rotation).
type SubscriptionRepository interface {
	GetByWorkspaceID(ctx context.Context, workspaceID string) (*models.Subscription, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Subscription, error)
	UpdateAPIKey(ctx context.Context, workspaceID, hash, prefix string) error
}

// IncomingTriggerRepository defines the interface for incoming trigger operations
type IncomingTriggerRepository interface {
	Create(ctx context.Context, trigger *models.IncomingTrigger) error
	GetByID(ctx context.Context, workspaceID, id string) (*models.IncomingTrigger, error)
	GetByWebhookToken(ctx context.Context, token string) (*models.IncomingTrigger, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]models.IncomingTrigger, error)
	UpdateStatus(ctx context.Context, workspaceID, id, status string) error
	Delete(ctx context.Context, workspaceID, id string) error
	// RecordFailure counts a failed secret check and flips the trigger to
	// error once threshold consecutive failures are reached.
	RecordFailure(ctx context.Context, id string, threshold int) (*models.IncomingTrigger, error)
	RecordSuccess(ctx context.Context, id string, at time.Time) error
}

// OutgoingTriggerRepository defines the interface for outgoing trigger operations
type OutgoingTriggerRepository interface {
	Create(ctx context.Context, trigger *models.OutgoingTrigger) error
	GetByID(ctx context.Context, workspaceID, id string) (*models.OutgoingTrigger, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]models.OutgoingTrigger, error)
	ListActiveByEvent(ctx context.Context, workspaceID, eventType string) ([]models.OutgoingTrigger, error)
	UpdateStatus(ctx context.Context, workspaceID, id, status string) error
	Delete(ctx context.Context, workspaceID, id string) error
}

// TriggerEventRepository stores incoming deliveries for deduplication
type TriggerEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.TriggerEvent) (bool, *models.TriggerEvent, error)
	// MarkAuthorized records the debit for an event still unauthorized and
	// reports false when another attempt already claimed it.
	MarkAuthorized(ctx context.Context, id uint, authorizationID string) (bool, error)
	MarkDenied(ctx context.Context, id uint, reason string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Subscription    SubscriptionRepository
	IncomingTrigger IncomingTriggerRepository
	OutgoingTrigger OutgoingTriggerRepository
	TriggerEvent    TriggerEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscription:    NewSubscriptionRepository(db),
		IncomingTrigger: NewIncomingTriggerRepository(db),
		OutgoingTrigger: NewOutgoingTriggerRepository(db),
		TriggerEvent:    NewTriggerEventRepository(db),
	}
}
