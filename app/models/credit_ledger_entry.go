package models

import "time"

const (
	LedgerKindDebit    = "debit"
	LedgerKindRefund   = "refund"
	LedgerKindRecharge = "recharge"
)

// CreditLedgerEntry is an append-only record of a balance change. The ID of a
// debit entry doubles as the authorization id handed to callers.
type CreditLedgerEntry struct {
	ID           string     `gorm:"type:char(36);primaryKey" json:"id"`
	WorkspaceID  string     `gorm:"type:char(36);not null;index:idx_ledger_ws_created,priority:1" json:"workspace_id"`
	Kind         string     `gorm:"type:varchar(16);not null;index" json:"kind"`
	ActionType   string     `gorm:"type:varchar(32);not null;default:''" json:"action_type,omitempty"`
	Amount       int64      `gorm:"not null" json:"amount"`
	BalanceAfter int64      `gorm:"not null" json:"balance_after"`
	TriggerID    string     `gorm:"type:varchar(36);not null;default:''" json:"trigger_id,omitempty"`
	ReferenceID  string     `gorm:"type:varchar(191);not null;default:'';index" json:"reference_id,omitempty"`
	RefundedAt   *time.Time `gorm:"type:timestamp(6);default:null" json:"refunded_at,omitempty"`
	CreatedAt    time.Time  `gorm:"type:timestamp(6);index:idx_ledger_ws_created,priority:2;index" json:"created_at"`
}

// IsRefundable reports whether the entry is a debit that has not been refunded yet.
func (e *CreditLedgerEntry) IsRefundable() bool {
	return e.Kind == LedgerKindDebit && e.RefundedAt == nil
}
