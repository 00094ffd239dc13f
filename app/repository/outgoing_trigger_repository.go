package repository

import (
	"context"

	"github.com/ManuelReschke/CreditGate/app/models"
	"gorm.io/gorm"
)

// outgoingTriggerRepository implements the OutgoingTriggerRepository interface
type outgoingTriggerRepository struct {
	db *gorm.DB
}

// NewOutgoingTriggerRepository creates a new outgoing trigger repository instance
func NewOutgoingTriggerRepository(db *gorm.DB) OutgoingTriggerRepository {
	return &outgoingTriggerRepository{db: db}
}

func (r *outgoingTriggerRepository) Create(ctx context.Context, trigger *models.OutgoingTrigger) error {
	return r.db.WithContext(ctx).Create(trigger).Error
}

func (r *outgoingTriggerRepository) GetByID(ctx context.Context, workspaceID, id string) (*models.OutgoingTrigger, error) {
	var trigger models.OutgoingTrigger
	err := r.db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&trigger).Error
	if err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (r *outgoingTriggerRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]models.OutgoingTrigger, error) {
	var triggers []models.OutgoingTrigger
	err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("created_at DESC").Find(&triggers).Error
	return triggers, err
}

// ListActiveByEvent returns the active triggers subscribed to an event type
func (r *outgoingTriggerRepository) ListActiveByEvent(ctx context.Context, workspaceID, eventType string) ([]models.OutgoingTrigger, error) {
	var triggers []models.OutgoingTrigger
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND event_type = ? AND status = ?", workspaceID, eventType, models.TriggerStatusActive).
		Order("created_at ASC").
		Find(&triggers).Error
	return triggers, err
}

func (r *outgoingTriggerRepository) UpdateStatus(ctx context.Context, workspaceID, id, status string) error {
	res := r.db.WithContext(ctx).Model(&models.OutgoingTrigger{}).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *outgoingTriggerRepository) Delete(ctx context.Context, workspaceID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).Delete(&models.OutgoingTrigger{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
