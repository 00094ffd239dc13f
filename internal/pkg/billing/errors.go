package billing

import "errors"

var (
	ErrNotFound         = errors.New("subscription not found")
	ErrTriggerNotFound  = errors.New("trigger not found")
	ErrEntryNotFound    = errors.New("ledger entry not found")
	ErrAlreadyRefunded  = errors.New("authorization already refunded")
	ErrNotRefundable    = errors.New("ledger entry is not refundable")
	ErrInvalidAmount    = errors.New("credit amount must be positive")
	ErrInvalidPlan      = errors.New("unknown plan tier")
	ErrInvalidStatus    = errors.New("unknown subscription status")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrTriggerInactive  = errors.New("trigger is not active")
	ErrLimitReached     = errors.New("plan trigger limit reached")
)
