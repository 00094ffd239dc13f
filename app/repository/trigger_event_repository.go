package repository

import (
	"context"

	"github.com/ManuelReschke/CreditGate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// triggerEventRepository implements the TriggerEventRepository interface
type triggerEventRepository struct {
	db *gorm.DB
}

// NewTriggerEventRepository creates a new trigger event repository instance
func NewTriggerEventRepository(db *gorm.DB) TriggerEventRepository {
	return &triggerEventRepository{db: db}
}

// CreateIfNotExists inserts the event unless the same delivery was already
// stored. It reports whether a new row was created.
func (r *triggerEventRepository) CreateIfNotExists(ctx context.Context, event *models.TriggerEvent) (bool, *models.TriggerEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "trigger_id"},
			{Name: "delivery_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.TriggerEvent
	if err := db.Where("trigger_id = ? AND delivery_id = ?", event.TriggerID, event.DeliveryID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *triggerEventRepository) MarkAuthorized(ctx context.Context, id uint, authorizationID string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.TriggerEvent{}).
		Where("id = ? AND authorized = ?", id, false).
		Updates(map[string]interface{}{
			"authorized":       true,
			"reason":           "",
			"authorization_id": authorizationID,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *triggerEventRepository) MarkDenied(ctx context.Context, id uint, reason string) error {
	return r.db.WithContext(ctx).Model(&models.TriggerEvent{}).
		Where("id = ? AND authorized = ?", id, false).
		Update("reason", reason).Error
}
