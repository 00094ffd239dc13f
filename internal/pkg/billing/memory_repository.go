package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
)

// MemoryRepository is an in-process Repository. Each workspace is serialized
// by its own mutex and writes are staged until the callback succeeds, so it
// gives the same all-or-nothing behaviour as the GORM transaction.
type MemoryRepository struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	subs     map[string]models.Subscription
	ledger   []models.CreditLedgerEntry
	outgoing map[string]models.OutgoingTrigger
	incoming map[string]models.IncomingTrigger
}

// NewMemoryRepository creates an empty in-process repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		locks:    make(map[string]*sync.Mutex),
		subs:     make(map[string]models.Subscription),
		outgoing: make(map[string]models.OutgoingTrigger),
		incoming: make(map[string]models.IncomingTrigger),
	}
}

func (r *MemoryRepository) workspaceLock(workspaceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[workspaceID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[workspaceID] = l
	}
	return l
}

func (r *MemoryRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subs[sub.WorkspaceID]; exists {
		return fmt.Errorf("subscription %s already exists", sub.WorkspaceID)
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	r.subs[sub.WorkspaceID] = *sub
	return nil
}

func (r *MemoryRepository) GetSubscription(ctx context.Context, workspaceID string) (*models.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[workspaceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// FindSubscriptionByAPIKeyHash resolves a workspace from a hashed API key.
func (r *MemoryRepository) FindSubscriptionByAPIKeyHash(keyHash string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.APIKeyHash != "" && sub.APIKeyHash == keyHash {
			s := sub
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) WithWorkspace(ctx context.Context, workspaceID string, fn func(tx WorkspaceTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := r.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	sub, ok := r.subs[workspaceID]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	tx := &memoryWorkspaceTx{
		repo:     r,
		sub:      &sub,
		refunded: make(map[string]time.Time),
	}
	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tx.commit()
	return nil
}

func (r *MemoryRepository) CountActiveOutgoingTriggers(ctx context.Context, workspaceID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.outgoing {
		if t.WorkspaceID == workspaceID && t.Status == models.TriggerStatusActive {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CountActiveIncomingTriggers(ctx context.Context, workspaceID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.incoming {
		if t.WorkspaceID == workspaceID && t.Status == models.TriggerStatusActive {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListLedgerEntries(ctx context.Context, workspaceID string, limit int) ([]models.CreditLedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CreditLedgerEntry
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if r.ledger[i].WorkspaceID != workspaceID {
			continue
		}
		out = append(out, r.ledger[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListLedgerEntriesBetween(ctx context.Context, from, to time.Time) ([]models.CreditLedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CreditLedgerEntry
	for _, e := range r.ledger {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveOutgoingTrigger inserts or replaces an outgoing trigger.
func (r *MemoryRepository) SaveOutgoingTrigger(t *models.OutgoingTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outgoing[t.ID] = *t
}

// GetOutgoingTrigger returns a copy of a stored outgoing trigger.
func (r *MemoryRepository) GetOutgoingTrigger(id string) (*models.OutgoingTrigger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.outgoing[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

// ListOutgoingTriggers returns the workspace's outgoing triggers.
func (r *MemoryRepository) ListOutgoingTriggers(workspaceID string) []models.OutgoingTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OutgoingTrigger
	for _, t := range r.outgoing {
		if t.WorkspaceID == workspaceID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteOutgoingTrigger removes an outgoing trigger.
func (r *MemoryRepository) DeleteOutgoingTrigger(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outgoing, id)
}

// SaveIncomingTrigger inserts or replaces an incoming trigger.
func (r *MemoryRepository) SaveIncomingTrigger(t *models.IncomingTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incoming[t.ID] = *t
}

// GetIncomingTrigger returns a copy of a stored incoming trigger.
func (r *MemoryRepository) GetIncomingTrigger(id string) (*models.IncomingTrigger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.incoming[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

// ListIncomingTriggers returns the workspace's incoming triggers.
func (r *MemoryRepository) ListIncomingTriggers(workspaceID string) []models.IncomingTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.IncomingTrigger
	for _, t := range r.incoming {
		if t.WorkspaceID == workspaceID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindIncomingTriggerByToken resolves an incoming trigger by webhook token.
func (r *MemoryRepository) FindIncomingTriggerByToken(token string) (*models.IncomingTrigger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.incoming {
		if t.WebhookToken == token {
			found := t
			return &found, true
		}
	}
	return nil, false
}

// DeleteIncomingTrigger removes an incoming trigger.
func (r *MemoryRepository) DeleteIncomingTrigger(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.incoming, id)
}

type memoryWorkspaceTx struct {
	repo       *MemoryRepository
	sub        *models.Subscription
	saved      *models.Subscription
	appended   []models.CreditLedgerEntry
	refunded   map[string]time.Time
	dispatches []memoryDispatch
}

type memoryDispatch struct {
	triggerID string
	at        time.Time
}

func (t *memoryWorkspaceTx) Subscription() *models.Subscription {
	return t.sub
}

func (t *memoryWorkspaceTx) SaveSubscription(sub *models.Subscription) error {
	s := *sub
	t.saved = &s
	return nil
}

func (t *memoryWorkspaceTx) FindLedgerEntry(id string) (*models.CreditLedgerEntry, error) {
	var found *models.CreditLedgerEntry
	for i := range t.appended {
		if t.appended[i].ID == id {
			e := t.appended[i]
			found = &e
		}
	}
	if found == nil {
		t.repo.mu.Lock()
		for i := range t.repo.ledger {
			if t.repo.ledger[i].ID == id && t.repo.ledger[i].WorkspaceID == t.sub.WorkspaceID {
				e := t.repo.ledger[i]
				found = &e
				break
			}
		}
		t.repo.mu.Unlock()
	}
	if found == nil {
		return nil, ErrEntryNotFound
	}
	if at, ok := t.refunded[id]; ok {
		found.RefundedAt = &at
	}
	return found, nil
}

func (t *memoryWorkspaceTx) AppendLedgerEntry(entry *models.CreditLedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	t.appended = append(t.appended, *entry)
	return nil
}

func (t *memoryWorkspaceTx) MarkEntryRefunded(id string, at time.Time) error {
	t.refunded[id] = at
	return nil
}

func (t *memoryWorkspaceTx) FindOutgoingTrigger(id string) (*models.OutgoingTrigger, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	trigger, ok := t.repo.outgoing[id]
	if !ok || trigger.WorkspaceID != t.sub.WorkspaceID {
		return nil, ErrTriggerNotFound
	}
	return &trigger, nil
}

func (t *memoryWorkspaceTx) RecordDispatch(triggerID string, at time.Time) error {
	t.dispatches = append(t.dispatches, memoryDispatch{triggerID: triggerID, at: at})
	return nil
}

// commit must be called with repo.mu held.
func (t *memoryWorkspaceTx) commit() {
	r := t.repo
	if t.saved != nil {
		t.saved.UpdatedAt = time.Now().UTC()
		r.subs[t.saved.WorkspaceID] = *t.saved
	}
	r.ledger = append(r.ledger, t.appended...)
	for id, at := range t.refunded {
		for i := range r.ledger {
			if r.ledger[i].ID == id && r.ledger[i].RefundedAt == nil {
				refundedAt := at
				r.ledger[i].RefundedAt = &refundedAt
			}
		}
	}
	for _, d := range t.dispatches {
		trigger, ok := r.outgoing[d.triggerID]
		if !ok {
			continue
		}
		trigger.UsageCount++
		at := d.at
		trigger.LastDispatchAt = &at
		r.outgoing[d.triggerID] = trigger
	}
}
