package entitlements

import "strings"

type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Limits bounds what a workspace on a given plan may do.
type Limits struct {
	MaxOutgoingTriggers int64 `json:"max_outgoing_triggers"`
	MaxIncomingTriggers int64 `json:"max_incoming_triggers"`
	DailyCreditCap      int64 `json:"daily_credit_cap"`
}

var planLimits = map[Plan]Limits{
	PlanFree:       {MaxOutgoingTriggers: 0, MaxIncomingTriggers: 1, DailyCreditCap: 25},
	PlanStarter:    {MaxOutgoingTriggers: 3, MaxIncomingTriggers: 5, DailyCreditCap: 150},
	PlanGrowth:     {MaxOutgoingTriggers: 10, MaxIncomingTriggers: 20, DailyCreditCap: 600},
	PlanPro:        {MaxOutgoingTriggers: 25, MaxIncomingTriggers: 50, DailyCreditCap: 2000},
	PlanEnterprise: {MaxOutgoingTriggers: 999, MaxIncomingTriggers: 999, DailyCreditCap: 100000},
}

// Plans lists every tier from lowest to highest.
func Plans() []Plan {
	return []Plan{PlanFree, PlanStarter, PlanGrowth, PlanPro, PlanEnterprise}
}

// LimitsFor returns the limits of a plan. Unknown plans get the free limits.
func LimitsFor(plan Plan) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// NormalizePlan maps free-form input to a known plan, falling back to free.
func NormalizePlan(plan string) Plan {
	p := Plan(strings.ToLower(strings.TrimSpace(plan)))
	if _, ok := planLimits[p]; ok {
		return p
	}
	return PlanFree
}

// IsKnownPlan reports whether the input names a plan tier.
func IsKnownPlan(plan string) bool {
	_, ok := planLimits[Plan(strings.ToLower(strings.TrimSpace(plan)))]
	return ok
}

// Rank orders plans from free (0) to enterprise (4).
func Rank(plan Plan) int {
	switch plan {
	case PlanEnterprise:
		return 4
	case PlanPro:
		return 3
	case PlanGrowth:
		return 2
	case PlanStarter:
		return 1
	default:
		return 0
	}
}
