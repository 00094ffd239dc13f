package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"gorm.io/gorm"
)

// NewMemoryRepositories returns repositories that share state with an
// in-process billing store. Used by tests and local tooling without MySQL.
func NewMemoryRepositories(store *billing.MemoryRepository) *Repositories {
	return &Repositories{
		Subscription:    &memorySubscriptionRepository{store: store},
		IncomingTrigger: &memoryIncomingTriggerRepository{store: store},
		OutgoingTrigger: &memoryOutgoingTriggerRepository{store: store},
		TriggerEvent:    &memoryTriggerEventRepository{events: make(map[string]*models.TriggerEvent)},
	}
}

type memorySubscriptionRepository struct {
	store *billing.MemoryRepository
}

func (r *memorySubscriptionRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) (*models.Subscription, error) {
	sub, err := r.store.GetSubscription(ctx, workspaceID)
	if errors.Is(err, billing.ErrNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, err
}

func (r *memorySubscriptionRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, gorm.ErrRecordNotFound
	}
	sub, err := r.store.FindSubscriptionByAPIKeyHash(hash)
	if errors.Is(err, billing.ErrNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, err
}

func (r *memorySubscriptionRepository) UpdateAPIKey(ctx context.Context, workspaceID, hash, prefix string) error {
	err := r.store.WithWorkspace(ctx, workspaceID, func(tx billing.WorkspaceTx) error {
		sub := tx.Subscription()
		sub.APIKeyHash = hash
		sub.APIKeyPrefix = prefix
		return tx.SaveSubscription(sub)
	})
	if errors.Is(err, billing.ErrNotFound) {
		return gorm.ErrRecordNotFound
	}
	return err
}

type memoryIncomingTriggerRepository struct {
	mu    sync.Mutex
	store *billing.MemoryRepository
}

func (r *memoryIncomingTriggerRepository) Create(ctx context.Context, trigger *models.IncomingTrigger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := r.store.FindIncomingTriggerByToken(trigger.WebhookToken); exists {
		return gorm.ErrDuplicatedKey
	}
	now := time.Now().UTC()
	trigger.CreatedAt = now
	trigger.UpdatedAt = now
	r.store.SaveIncomingTrigger(trigger)
	return nil
}

func (r *memoryIncomingTriggerRepository) GetByID(ctx context.Context, workspaceID, id string) (*models.IncomingTrigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := r.store.GetIncomingTrigger(id)
	if !ok || t.WorkspaceID != workspaceID {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (r *memoryIncomingTriggerRepository) GetByWebhookToken(ctx context.Context, token string) (*models.IncomingTrigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := r.store.FindIncomingTriggerByToken(token)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (r *memoryIncomingTriggerRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]models.IncomingTrigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.ListIncomingTriggers(workspaceID), nil
}

func (r *memoryIncomingTriggerRepository) UpdateStatus(ctx context.Context, workspaceID, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.GetByID(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	t.Status = status
	if status == models.TriggerStatusActive {
		t.ConsecutiveFailures = 0
	}
	r.store.SaveIncomingTrigger(t)
	return nil
}

func (r *memoryIncomingTriggerRepository) Delete(ctx context.Context, workspaceID, id string) error {
	if _, err := r.GetByID(ctx, workspaceID, id); err != nil {
		return err
	}
	r.store.DeleteIncomingTrigger(id)
	return nil
}

func (r *memoryIncomingTriggerRepository) RecordFailure(ctx context.Context, id string, threshold int) (*models.IncomingTrigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := r.store.GetIncomingTrigger(id)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	t.ConsecutiveFailures++
	if threshold > 0 && t.Status == models.TriggerStatusActive && t.ConsecutiveFailures >= threshold {
		t.Status = models.TriggerStatusError
	}
	r.store.SaveIncomingTrigger(t)
	return t, nil
}

func (r *memoryIncomingTriggerRepository) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	t, ok := r.store.GetIncomingTrigger(id)
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.ConsecutiveFailures = 0
	t.LastHitAt = &at
	r.store.SaveIncomingTrigger(t)
	return nil
}

type memoryOutgoingTriggerRepository struct {
	mu    sync.Mutex
	store *billing.MemoryRepository
}

func (r *memoryOutgoingTriggerRepository) Create(ctx context.Context, trigger *models.OutgoingTrigger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	trigger.CreatedAt = now
	trigger.UpdatedAt = now
	r.store.SaveOutgoingTrigger(trigger)
	return nil
}

func (r *memoryOutgoingTriggerRepository) GetByID(ctx context.Context, workspaceID, id string) (*models.OutgoingTrigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := r.store.GetOutgoingTrigger(id)
	if !ok || t.WorkspaceID != workspaceID {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (r *memoryOutgoingTriggerRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]models.OutgoingTrigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.ListOutgoingTriggers(workspaceID), nil
}

func (r *memoryOutgoingTriggerRepository) ListActiveByEvent(ctx context.Context, workspaceID, eventType string) ([]models.OutgoingTrigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.OutgoingTrigger
	for _, t := range r.store.ListOutgoingTriggers(workspaceID) {
		if t.EventType == eventType && t.Status == models.TriggerStatusActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryOutgoingTriggerRepository) UpdateStatus(ctx context.Context, workspaceID, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.GetByID(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	t.Status = status
	r.store.SaveOutgoingTrigger(t)
	return nil
}

func (r *memoryOutgoingTriggerRepository) Delete(ctx context.Context, workspaceID, id string) error {
	if _, err := r.GetByID(ctx, workspaceID, id); err != nil {
		return err
	}
	r.store.DeleteOutgoingTrigger(id)
	return nil
}

type memoryTriggerEventRepository struct {
	mu     sync.Mutex
	nextID uint
	events map[string]*models.TriggerEvent
}

func (r *memoryTriggerEventRepository) CreateIfNotExists(ctx context.Context, event *models.TriggerEvent) (bool, *models.TriggerEvent, error) {
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.TriggerID + "|" + event.DeliveryID
	if stored, ok := r.events[key]; ok {
		e := *stored
		return false, &e, nil
	}
	r.nextID++
	event.ID = r.nextID
	event.CreatedAt = time.Now().UTC()
	stored := *event
	r.events[key] = &stored
	e := stored
	return true, &e, nil
}

func (r *memoryTriggerEventRepository) MarkAuthorized(ctx context.Context, id uint, authorizationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byID(id)
	if e == nil || e.Authorized {
		return false, nil
	}
	e.Authorized = true
	e.Reason = ""
	e.AuthorizationID = authorizationID
	return true, nil
}

func (r *memoryTriggerEventRepository) MarkDenied(ctx context.Context, id uint, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byID(id)
	if e == nil {
		return gorm.ErrRecordNotFound
	}
	if !e.Authorized {
		e.Reason = reason
	}
	return nil
}

func (r *memoryTriggerEventRepository) byID(id uint) *models.TriggerEvent {
	for _, e := range r.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}
