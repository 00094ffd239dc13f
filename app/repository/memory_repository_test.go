package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMemoryIncomingTriggerFailureThreshold(t *testing.T) {
	repos := NewMemoryRepositories(billing.NewMemoryRepository())
	ctx := context.Background()

	trigger := &models.IncomingTrigger{ID: "in-1", WorkspaceID: "ws-1", Status: models.TriggerStatusActive, WebhookToken: "hk_abc"}
	require.NoError(t, repos.IncomingTrigger.Create(ctx, trigger))

	for i := 1; i < 3; i++ {
		got, err := repos.IncomingTrigger.RecordFailure(ctx, "in-1", 3)
		require.NoError(t, err)
		assert.Equal(t, i, got.ConsecutiveFailures)
		assert.Equal(t, models.TriggerStatusActive, got.Status)
	}

	got, err := repos.IncomingTrigger.RecordFailure(ctx, "in-1", 3)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusError, got.Status)

	require.NoError(t, repos.IncomingTrigger.UpdateStatus(ctx, "ws-1", "in-1", models.TriggerStatusActive))
	got, err = repos.IncomingTrigger.GetByWebhookToken(ctx, "hk_abc")
	require.NoError(t, err)
	assert.Equal(t, 0, got.ConsecutiveFailures)

	now := time.Now().UTC()
	require.NoError(t, repos.IncomingTrigger.RecordSuccess(ctx, "in-1", now))
	got, err = repos.IncomingTrigger.GetByID(ctx, "ws-1", "in-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastHitAt)

	_, err = repos.IncomingTrigger.GetByID(ctx, "ws-2", "in-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMemoryTriggerEventDeduplication(t *testing.T) {
	repos := NewMemoryRepositories(billing.NewMemoryRepository())
	ctx := context.Background()

	created, first, err := repos.TriggerEvent.CreateIfNotExists(ctx, &models.TriggerEvent{TriggerID: "in-1", DeliveryID: "d-1"})
	require.NoError(t, err)
	assert.True(t, created)

	created, second, err := repos.TriggerEvent.CreateIfNotExists(ctx, &models.TriggerEvent{TriggerID: "in-1", DeliveryID: "d-1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	created, _, err = repos.TriggerEvent.CreateIfNotExists(ctx, &models.TriggerEvent{TriggerID: "in-2", DeliveryID: "d-1"})
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, repos.TriggerEvent.MarkDenied(ctx, first.ID, "InsufficientCredits"))
	_, denied, err := repos.TriggerEvent.CreateIfNotExists(ctx, &models.TriggerEvent{TriggerID: "in-1", DeliveryID: "d-1"})
	require.NoError(t, err)
	assert.False(t, denied.Authorized)
	assert.Equal(t, "InsufficientCredits", denied.Reason)

	claimed, err := repos.TriggerEvent.MarkAuthorized(ctx, first.ID, "auth-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repos.TriggerEvent.MarkAuthorized(ctx, first.ID, "auth-2")
	require.NoError(t, err)
	assert.False(t, claimed, "an authorized event is claimed once")

	require.NoError(t, repos.TriggerEvent.MarkDenied(ctx, first.ID, "Overdue"))
	_, stored, err := repos.TriggerEvent.CreateIfNotExists(ctx, &models.TriggerEvent{TriggerID: "in-1", DeliveryID: "d-1"})
	require.NoError(t, err)
	assert.True(t, stored.Authorized)
	assert.Equal(t, "auth-1", stored.AuthorizationID)
	assert.Empty(t, stored.Reason)
}

func TestMemoryOutgoingTriggerListActiveByEvent(t *testing.T) {
	repos := NewMemoryRepositories(billing.NewMemoryRepository())
	ctx := context.Background()

	for _, tr := range []models.OutgoingTrigger{
		{ID: "a", WorkspaceID: "ws-1", EventType: models.EventLeadCreated, Status: models.TriggerStatusActive},
		{ID: "b", WorkspaceID: "ws-1", EventType: models.EventLeadCreated, Status: models.TriggerStatusPaused},
		{ID: "c", WorkspaceID: "ws-1", EventType: models.EventCallCompleted, Status: models.TriggerStatusActive},
		{ID: "d", WorkspaceID: "ws-2", EventType: models.EventLeadCreated, Status: models.TriggerStatusActive},
	} {
		tr := tr
		require.NoError(t, repos.OutgoingTrigger.Create(ctx, &tr))
	}

	active, err := repos.OutgoingTrigger.ListActiveByEvent(ctx, "ws-1", models.EventLeadCreated)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	assert.ErrorIs(t, repos.OutgoingTrigger.Delete(ctx, "ws-2", "a"), gorm.ErrRecordNotFound)
	require.NoError(t, repos.OutgoingTrigger.Delete(ctx, "ws-1", "a"))
}
