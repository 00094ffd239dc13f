package billing

import (
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
)

// startOfUTCDay truncates t to midnight UTC.
func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// applyDailyReset zeroes the daily counter when now falls on a later UTC day
// than the last reset. It reports whether the subscription changed.
func applyDailyReset(sub *models.Subscription, now time.Time) bool {
	if !startOfUTCDay(now).After(startOfUTCDay(sub.LastResetAt)) {
		return false
	}
	sub.CreditsUsedToday = 0
	sub.LastResetAt = now.UTC()
	return true
}

// evaluate runs the guards in their fixed order and returns the first failing
// reason, or "" when the action may proceed.
func evaluate(sub *models.Subscription, cost int64) Reason {
	switch {
	case !sub.IsActive():
		return ReasonSubscriptionInactive
	case sub.Overdue:
		return ReasonOverdue
	case sub.CreditsBalance < cost:
		return ReasonInsufficientCredits
	case sub.CreditsUsedToday+cost > sub.DailyCreditsLimit:
		return ReasonDailyLimitExceeded
	}
	return ""
}

// debit applies a successful authorization to the subscription.
func debit(sub *models.Subscription, cost int64) {
	sub.CreditsBalance -= cost
	sub.CreditsUsedToday += cost
}
