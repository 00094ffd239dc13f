package dispatch

import (
	"strings"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
)

// RetryPolicy decides what happens after a delivery attempt.
type RetryPolicy string

const (
	PolicyNone        RetryPolicy = RetryPolicy(models.RetryPolicyNone)
	PolicyInstant     RetryPolicy = RetryPolicy(models.RetryPolicyInstant)
	PolicyExponential RetryPolicy = RetryPolicy(models.RetryPolicyExponential)
)

const (
	InstantMaxRetries     = 3
	ExponentialMaxRetries = 5

	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 5 * time.Minute
)

// Backoff configures the exponential policy.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns 1s doubling, capped at 5m.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Max: DefaultBackoffMax}
}

// Action is the outcome of a policy decision.
type Action int

const (
	ActionComplete Action = iota
	ActionRetry
	ActionGiveUp
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionComplete:
		return "complete"
	case ActionRetry:
		return "retry"
	case ActionGiveUp:
		return "give_up"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Decision tells the queue what to do with a job after an attempt.
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// ParsePolicy maps stored values to a policy; unknown values mean no retry.
func ParsePolicy(s string) RetryPolicy {
	switch p := RetryPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyInstant, PolicyExponential:
		return p
	default:
		return PolicyNone
	}
}

// MaxRetries is the number of retries after the first attempt.
func (p RetryPolicy) MaxRetries() int {
	switch p {
	case PolicyInstant:
		return InstantMaxRetries
	case PolicyExponential:
		return ExponentialMaxRetries
	default:
		return 0
	}
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int, b Backoff) time.Duration {
	if p != PolicyExponential || retry < 1 {
		return 0
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	limit := b.Max
	if limit <= 0 {
		limit = DefaultBackoffMax
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// Decide evaluates an attempt result. retriesDone counts retries already
// performed before this attempt.
func (p RetryPolicy) Decide(success bool, retriesDone int, b Backoff) Decision {
	if success {
		return Decision{Action: ActionComplete}
	}
	if retriesDone >= p.MaxRetries() {
		return Decision{Action: ActionGiveUp}
	}
	return Decision{Action: ActionRetry, Delay: p.Delay(retriesDone+1, b)}
}
