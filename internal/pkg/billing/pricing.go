package billing

import "strings"

// ActionType names a billable platform action.
type ActionType string

const (
	ActionTriggerHit       ActionType = "trigger_hit"
	ActionOutgoingDispatch ActionType = "outgoing_dispatch"
	ActionLeadScore        ActionType = "lead_score"
	ActionAIMessage        ActionType = "ai_message"
	ActionImageGen         ActionType = "image_gen"
	ActionVideoGen         ActionType = "video_gen"
	ActionVoiceCall        ActionType = "voice_call"
)

// DefaultActionCost is charged for action types without a price entry.
const DefaultActionCost int64 = 1

var actionCosts = map[ActionType]int64{
	ActionTriggerHit:       1,
	ActionOutgoingDispatch: 1,
	ActionLeadScore:        2,
	ActionAIMessage:        3,
	ActionImageGen:         5,
	ActionVideoGen:         10,
	ActionVoiceCall:        15,
}

// Cost returns the credit cost of the action.
func (a ActionType) Cost() int64 {
	if c, ok := actionCosts[a]; ok {
		return c
	}
	return DefaultActionCost
}

// IsKnown reports whether the action has an explicit price.
func (a ActionType) IsKnown() bool {
	_, ok := actionCosts[a]
	return ok
}

// NormalizeAction lowercases and trims caller input.
func NormalizeAction(action string) ActionType {
	return ActionType(strings.ToLower(strings.TrimSpace(action)))
}

// PricingTable returns a copy of the price list.
func PricingTable() map[ActionType]int64 {
	out := make(map[ActionType]int64, len(actionCosts))
	for k, v := range actionCosts {
		out[k] = v
	}
	return out
}
