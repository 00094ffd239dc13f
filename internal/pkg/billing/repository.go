package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkspaceTx exposes the operations allowed while a workspace's subscription
// is locked. All writes become visible together when the callback returns nil.
type WorkspaceTx interface {
	Subscription() *models.Subscription
	SaveSubscription(sub *models.Subscription) error
	FindLedgerEntry(id string) (*models.CreditLedgerEntry, error)
	AppendLedgerEntry(entry *models.CreditLedgerEntry) error
	MarkEntryRefunded(id string, at time.Time) error
	FindOutgoingTrigger(id string) (*models.OutgoingTrigger, error)
	RecordDispatch(triggerID string, at time.Time) error
}

// Repository provides DB operations used by the billing service.
type Repository interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, workspaceID string) (*models.Subscription, error)
	// WithWorkspace runs fn with the workspace's subscription locked against
	// concurrent mutation. It returns ErrNotFound for unknown workspaces.
	WithWorkspace(ctx context.Context, workspaceID string, fn func(tx WorkspaceTx) error) error
	CountActiveOutgoingTriggers(ctx context.Context, workspaceID string) (int64, error)
	CountActiveIncomingTriggers(ctx context.Context, workspaceID string) (int64, error)
	ListLedgerEntries(ctx context.Context, workspaceID string, limit int) ([]models.CreditLedgerEntry, error)
	ListLedgerEntriesBetween(ctx context.Context, from, to time.Time) ([]models.CreditLedgerEntry, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *gormRepository) GetSubscription(ctx context.Context, workspaceID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) WithWorkspace(ctx context.Context, workspaceID string, fn func(tx WorkspaceTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("workspace_id = ?", workspaceID).
			First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fn(&gormWorkspaceTx{tx: tx, sub: &sub})
	})
}

func (r *gormRepository) CountActiveOutgoingTriggers(ctx context.Context, workspaceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OutgoingTrigger{}).
		Where("workspace_id = ? AND status = ?", workspaceID, models.TriggerStatusActive).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CountActiveIncomingTriggers(ctx context.Context, workspaceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IncomingTrigger{}).
		Where("workspace_id = ? AND status = ?", workspaceID, models.TriggerStatusActive).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) ListLedgerEntries(ctx context.Context, workspaceID string, limit int) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *gormRepository) ListLedgerEntriesBetween(ctx context.Context, from, to time.Time) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

type gormWorkspaceTx struct {
	tx  *gorm.DB
	sub *models.Subscription
}

func (t *gormWorkspaceTx) Subscription() *models.Subscription {
	return t.sub
}

func (t *gormWorkspaceTx) SaveSubscription(sub *models.Subscription) error {
	return t.tx.Model(&models.Subscription{}).
		Where("workspace_id = ?", sub.WorkspaceID).
		Updates(map[string]interface{}{
			"plan_tier":           sub.PlanTier,
			"status":              sub.Status,
			"overdue":             sub.Overdue,
			"credits_balance":     sub.CreditsBalance,
			"daily_credits_limit": sub.DailyCreditsLimit,
			"credits_used_today":  sub.CreditsUsedToday,
			"last_reset_at":       sub.LastResetAt,
		}).Error
}

func (t *gormWorkspaceTx) FindLedgerEntry(id string) (*models.CreditLedgerEntry, error) {
	var entry models.CreditLedgerEntry
	err := t.tx.Where("id = ? AND workspace_id = ?", id, t.sub.WorkspaceID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *gormWorkspaceTx) AppendLedgerEntry(entry *models.CreditLedgerEntry) error {
	return t.tx.Create(entry).Error
}

func (t *gormWorkspaceTx) MarkEntryRefunded(id string, at time.Time) error {
	return t.tx.Model(&models.CreditLedgerEntry{}).
		Where("id = ? AND refunded_at IS NULL", id).
		Update("refunded_at", at).Error
}

func (t *gormWorkspaceTx) FindOutgoingTrigger(id string) (*models.OutgoingTrigger, error) {
	var trigger models.OutgoingTrigger
	err := t.tx.Where("id = ? AND workspace_id = ?", id, t.sub.WorkspaceID).First(&trigger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTriggerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (t *gormWorkspaceTx) RecordDispatch(triggerID string, at time.Time) error {
	return t.tx.Model(&models.OutgoingTrigger{}).
		Where("id = ? AND workspace_id = ?", triggerID, t.sub.WorkspaceID).
		Updates(map[string]interface{}{
			"usage_count":      gorm.Expr("usage_count + ?", 1),
			"last_dispatch_at": at,
		}).Error
}
