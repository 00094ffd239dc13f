package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"gorm.io/gorm"
)

// incomingTriggerRepository implements the IncomingTriggerRepository interface
type incomingTriggerRepository struct {
	db *gorm.DB
}

// NewIncomingTriggerRepository creates a new incoming trigger repository instance
func NewIncomingTriggerRepository(db *gorm.DB) IncomingTriggerRepository {
	return &incomingTriggerRepository{db: db}
}

func (r *incomingTriggerRepository) Create(ctx context.Context, trigger *models.IncomingTrigger) error {
	return r.db.WithContext(ctx).Create(trigger).Error
}

func (r *incomingTriggerRepository) GetByID(ctx context.Context, workspaceID, id string) (*models.IncomingTrigger, error) {
	var trigger models.IncomingTrigger
	err := r.db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&trigger).Error
	if err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (r *incomingTriggerRepository) GetByWebhookToken(ctx context.Context, token string) (*models.IncomingTrigger, error) {
	var trigger models.IncomingTrigger
	err := r.db.WithContext(ctx).Where("webhook_token = ?", token).First(&trigger).Error
	if err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (r *incomingTriggerRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]models.IncomingTrigger, error) {
	var triggers []models.IncomingTrigger
	err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("created_at DESC").Find(&triggers).Error
	return triggers, err
}

func (r *incomingTriggerRepository) UpdateStatus(ctx context.Context, workspaceID, id, status string) error {
	updates := map[string]interface{}{"status": status}
	if status == models.TriggerStatusActive {
		updates["consecutive_failures"] = 0
	}
	res := r.db.WithContext(ctx).Model(&models.IncomingTrigger{}).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *incomingTriggerRepository) Delete(ctx context.Context, workspaceID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).Delete(&models.IncomingTrigger{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *incomingTriggerRepository) RecordFailure(ctx context.Context, id string, threshold int) (*models.IncomingTrigger, error) {
	var trigger models.IncomingTrigger
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.IncomingTrigger{}).
			Where("id = ?", id).
			Update("consecutive_failures", gorm.Expr("consecutive_failures + ?", 1)).Error; err != nil {
			return err
		}
		if threshold > 0 {
			if err := tx.Model(&models.IncomingTrigger{}).
				Where("id = ? AND status = ? AND consecutive_failures >= ?", id, models.TriggerStatusActive, threshold).
				Update("status", models.TriggerStatusError).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).First(&trigger).Error
	})
	if err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (r *incomingTriggerRepository) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.IncomingTrigger{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"consecutive_failures": 0,
			"last_hit_at":          at,
		}).Error
}
