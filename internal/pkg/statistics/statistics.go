package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditGate/app/models"
)

const (
	CacheKeyPlatform = "statistics:platform:%s" // Format with UTC date YYYY-MM-DD
	CacheExpiration  = 5 * time.Minute
)

// Snapshot is the platform-wide view shown to operators.
type Snapshot struct {
	Date                   string    `json:"date"`
	Workspaces             int64     `json:"workspaces"`
	ActiveWorkspaces       int64     `json:"active_workspaces"`
	LockedWorkspaces       int64     `json:"locked_workspaces"`
	ActiveIncomingTriggers int64     `json:"active_incoming_triggers"`
	ActiveOutgoingTriggers int64     `json:"active_outgoing_triggers"`
	CreditsDebitedToday    int64     `json:"credits_debited_today"`
	CreditsRefundedToday   int64     `json:"credits_refunded_today"`
	CreditsRechargedToday  int64     `json:"credits_recharged_today"`
	GeneratedAt            time.Time `json:"generated_at"`
}

// Source computes a fresh snapshot for the UTC day starting at dayStart.
type Source interface {
	Collect(ctx context.Context, dayStart time.Time) (*Snapshot, error)
}

// LedgerSource lists ledger entries across workspaces.
type LedgerSource interface {
	ListLedgerEntriesBetween(ctx context.Context, from, to time.Time) ([]models.CreditLedgerEntry, error)
}

// Service serves snapshots from Redis and recomputes them after CacheExpiration.
type Service struct {
	source Source
	client *redis.Client
	now    func() time.Time
}

// NewService creates the statistics service. client may be nil to disable caching.
func NewService(source Source, client *redis.Client) *Service {
	return &Service{
		source: source,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot returns today's statistics from cache or the source
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	key := fmt.Sprintf(CacheKeyPlatform, dayStart.Format("2006-01-02"))

	if s.client != nil {
		raw, err := s.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var cached Snapshot
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return &cached, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Warnf("[Statistics] Cache read failed: %v", err)
		}
	}

	snap, err := s.source.Collect(ctx, dayStart)
	if err != nil {
		return nil, err
	}
	snap.Date = dayStart.Format("2006-01-02")
	snap.GeneratedAt = now

	if s.client != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.client.Set(ctx, key, raw, CacheExpiration).Err(); err != nil {
				log.Warnf("[Statistics] Cache write failed: %v", err)
			}
		}
	}
	return snap, nil
}

// SummarizeLedger adds up today's credit movements. Debits are stored as
// negative amounts and reported as positive totals.
func SummarizeLedger(snap *Snapshot, entries []models.CreditLedgerEntry) {
	for _, e := range entries {
		switch e.Kind {
		case models.LedgerKindDebit:
			snap.CreditsDebitedToday += -e.Amount
		case models.LedgerKindRefund:
			snap.CreditsRefundedToday += e.Amount
		case models.LedgerKindRecharge:
			snap.CreditsRechargedToday += e.Amount
		}
	}
}

type gormSource struct {
	db     *gorm.DB
	ledger LedgerSource
}

// NewSource counts workspaces and triggers in MySQL and sums the ledger of the day.
func NewSource(db *gorm.DB, ledger LedgerSource) Source {
	return &gormSource{db: db, ledger: ledger}
}

func (g *gormSource) Collect(ctx context.Context, dayStart time.Time) (*Snapshot, error) {
	db := g.db.WithContext(ctx)
	snap := &Snapshot{}

	if err := db.Model(&models.Subscription{}).Count(&snap.Workspaces).Error; err != nil {
		return nil, fmt.Errorf("count workspaces: %w", err)
	}
	if err := db.Model(&models.Subscription{}).
		Where("status = ? AND overdue = ?", models.SubscriptionStatusActive, false).
		Count(&snap.ActiveWorkspaces).Error; err != nil {
		return nil, fmt.Errorf("count active workspaces: %w", err)
	}
	snap.LockedWorkspaces = snap.Workspaces - snap.ActiveWorkspaces

	if err := db.Model(&models.IncomingTrigger{}).
		Where("status = ?", models.TriggerStatusActive).
		Count(&snap.ActiveIncomingTriggers).Error; err != nil {
		return nil, fmt.Errorf("count incoming triggers: %w", err)
	}
	if err := db.Model(&models.OutgoingTrigger{}).
		Where("status = ?", models.TriggerStatusActive).
		Count(&snap.ActiveOutgoingTriggers).Error; err != nil {
		return nil, fmt.Errorf("count outgoing triggers: %w", err)
	}

	entries, err := g.ledger.ListLedgerEntriesBetween(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	SummarizeLedger(snap, entries)
	return snap, nil
}
