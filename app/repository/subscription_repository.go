package repository

import (
	"context"

	"github.com/ManuelReschke/CreditGate/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByAPIKeyHash resolves the workspace owning a hashed API key
func (r *subscriptionRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Subscription, error) {
	var sub models.Subscription
	if hash == "" {
		return nil, gorm.ErrRecordNotFound
	}
	if err := r.db.WithContext(ctx).Where("api_key_hash = ?", hash).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) UpdateAPIKey(ctx context.Context, workspaceID, hash, prefix string) error {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("workspace_id = ?", workspaceID).
		Updates(map[string]interface{}{
			"api_key_hash":   hash,
			"api_key_prefix": prefix,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
