package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionCost(t *testing.T) {
	tests := []struct {
		action ActionType
		want   int64
	}{
		{ActionTriggerHit, 1},
		{ActionOutgoingDispatch, 1},
		{ActionLeadScore, 2},
		{ActionAIMessage, 3},
		{ActionImageGen, 5},
		{ActionVideoGen, 10},
		{ActionVoiceCall, 15},
		{ActionType("fax"), DefaultActionCost},
		{ActionType(""), DefaultActionCost},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.action.Cost(), "cost of %q", tt.action)
	}
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, ActionVoiceCall, NormalizeAction(" Voice_Call "))
	assert.False(t, NormalizeAction("unknown").IsKnown())
}

func TestPricingTableIsCopy(t *testing.T) {
	table := PricingTable()
	table[ActionTriggerHit] = 99
	assert.Equal(t, int64(1), ActionTriggerHit.Cost())
}

func TestReasonIsRevenueLock(t *testing.T) {
	assert.True(t, ReasonSubscriptionInactive.IsRevenueLock())
	assert.True(t, ReasonOverdue.IsRevenueLock())
	assert.False(t, ReasonInsufficientCredits.IsRevenueLock())
	assert.False(t, ReasonDailyLimitExceeded.IsRevenueLock())
}
