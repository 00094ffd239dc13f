package intake

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/app/repository"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
)

const testSecret = "whsec_testsecret"

type intakeFixture struct {
	svc       *Service
	billing   *billing.Service
	repos     *repository.Repositories
	workspace string
	trigger   *models.IncomingTrigger

	mu     sync.Mutex
	counts map[string]int
}

func newIntakeFixture(t *testing.T, credits int64) *intakeFixture {
	t.Helper()
	ctx := context.Background()
	store := billing.NewMemoryRepository()
	billingSvc := billing.NewService(store)
	repos := repository.NewMemoryRepositories(store)

	sub, _, err := billingSvc.OpenSubscription(ctx, "starter", credits)
	require.NoError(t, err)

	hash, err := models.HashTriggerSecret(testSecret)
	require.NoError(t, err)
	token, err := models.GenerateWebhookToken()
	require.NoError(t, err)
	trigger := &models.IncomingTrigger{
		ID:           uuid.NewString(),
		WorkspaceID:  sub.WorkspaceID,
		Name:         "Lead form",
		Type:         models.IncomingTypeLeadIngestion,
		Status:       models.TriggerStatusActive,
		WebhookToken: token,
		SecretHash:   hash,
	}
	require.NoError(t, repos.IncomingTrigger.Create(ctx, trigger))

	f := &intakeFixture{
		billing:   billingSvc,
		repos:     repos,
		workspace: sub.WorkspaceID,
		trigger:   trigger,
		counts:    map[string]int{},
	}
	f.svc = NewService(repos.IncomingTrigger, repos.TriggerEvent, billingSvc, func(_ context.Context, id string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.counts[id]++
		return nil
	}, 3)
	return f
}

func (f *intakeFixture) deliver(t *testing.T, secret, deliveryID, body string) *Outcome {
	t.Helper()
	out, err := f.svc.HandleDelivery(context.Background(), Delivery{
		Token:      f.trigger.WebhookToken,
		Secret:     secret,
		DeliveryID: deliveryID,
		Body:       []byte(body),
		RemoteIP:   "203.0.113.7",
	})
	require.NoError(t, err)
	return out
}

func TestHandleDelivery_Accepted(t *testing.T) {
	f := newIntakeFixture(t, 10)

	out := f.deliver(t, testSecret, "d-1", `{"lead":"L-1"}`)
	assert.Equal(t, fiber.StatusAccepted, out.Status)
	assert.Equal(t, CodeAccepted, out.Code)
	require.NotNil(t, out.Authorization)
	assert.True(t, out.Authorization.Success)
	assert.Equal(t, int64(9), out.Authorization.RemainingCredits)
	assert.NotEmpty(t, out.Authorization.AuthorizationID)
	assert.Equal(t, 1, f.counts[f.trigger.ID])

	stored, err := f.repos.IncomingTrigger.GetByID(context.Background(), f.workspace, f.trigger.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastHitAt)
}

func TestHandleDelivery_DuplicateIsNotChargedTwice(t *testing.T) {
	f := newIntakeFixture(t, 10)

	first := f.deliver(t, testSecret, "d-1", `{"a":1}`)
	require.Equal(t, fiber.StatusAccepted, first.Status)

	second := f.deliver(t, testSecret, "d-1", `{"a":1}`)
	assert.Equal(t, fiber.StatusOK, second.Status)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.EventID, second.EventID)

	usage, err := f.billing.Usage(context.Background(), f.workspace)
	require.NoError(t, err)
	assert.Equal(t, int64(9), usage.CreditsBalance)
	assert.Equal(t, 1, f.counts[f.trigger.ID])
}

func TestHandleDelivery_ContentHashDedupesWithoutHeader(t *testing.T) {
	f := newIntakeFixture(t, 10)

	assert.Equal(t, fiber.StatusAccepted, f.deliver(t, testSecret, "", `{"a":1}`).Status)
	assert.True(t, f.deliver(t, testSecret, "", `{"a":1}`).Duplicate)
	assert.Equal(t, fiber.StatusAccepted, f.deliver(t, testSecret, "", `{"a":2}`).Status)
}

func TestHandleDelivery_Rejections(t *testing.T) {
	f := newIntakeFixture(t, 10)

	out, err := f.svc.HandleDelivery(context.Background(), Delivery{Token: "hk_missing", Secret: testSecret, Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, out.Status)
	assert.Equal(t, CodeTriggerNotFound, out.Code)
	assert.ErrorIs(t, out.Err, billing.ErrTriggerNotFound)

	out = f.deliver(t, testSecret, "d-x", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, out.Status)
	assert.Equal(t, CodeInvalidPayload, out.Code)

	out = f.deliver(t, "wrong", "d-y", `{}`)
	assert.Equal(t, fiber.StatusUnauthorized, out.Status)
	assert.Equal(t, CodeInvalidSignature, out.Code)
	assert.ErrorIs(t, out.Err, billing.ErrInvalidSignature)

	require.NoError(t, f.repos.IncomingTrigger.UpdateStatus(context.Background(), f.workspace, f.trigger.ID, models.TriggerStatusPaused))
	out = f.deliver(t, testSecret, "d-z", `{}`)
	assert.Equal(t, fiber.StatusConflict, out.Status)
	assert.Equal(t, CodeTriggerInactive, out.Code)
	assert.ErrorIs(t, out.Err, billing.ErrTriggerInactive)

	usage, err := f.billing.Usage(context.Background(), f.workspace)
	require.NoError(t, err)
	assert.Equal(t, int64(10), usage.CreditsBalance, "rejections never debit")
}

func TestHandleDelivery_SecretCheckedBeforeStatus(t *testing.T) {
	f := newIntakeFixture(t, 10)
	require.NoError(t, f.repos.IncomingTrigger.UpdateStatus(context.Background(), f.workspace, f.trigger.ID, models.TriggerStatusPaused))

	out := f.deliver(t, "wrong", "d-1", `{}`)
	assert.Equal(t, fiber.StatusUnauthorized, out.Status, "trigger state is not revealed without the secret")
	assert.Equal(t, CodeInvalidSignature, out.Code)
}

func TestHandleDelivery_SecretFailuresDisableTrigger(t *testing.T) {
	f := newIntakeFixture(t, 10)

	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusUnauthorized, f.deliver(t, "wrong", "", `{}`).Status)
	}

	stored, err := f.repos.IncomingTrigger.GetByID(context.Background(), f.workspace, f.trigger.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusError, stored.Status)

	out := f.deliver(t, testSecret, "d-ok", `{}`)
	assert.Equal(t, fiber.StatusConflict, out.Status)
}

func TestHandleDelivery_Denials(t *testing.T) {
	f := newIntakeFixture(t, 0)

	out := f.deliver(t, testSecret, "d-1", `{}`)
	assert.Equal(t, fiber.StatusPaymentRequired, out.Status)
	assert.Equal(t, string(billing.ReasonInsufficientCredits), out.Message)
	assert.Empty(t, f.counts)

	_, err := f.billing.SetStanding(context.Background(), f.workspace, models.SubscriptionStatusActive, true)
	require.NoError(t, err)
	out = f.deliver(t, testSecret, "d-2", `{}`)
	assert.Equal(t, fiber.StatusForbidden, out.Status)
	assert.Equal(t, CodeRevenueLock, out.Code)
	assert.Equal(t, string(billing.ReasonOverdue), out.Message)
}

func TestHandleDelivery_DeniedDeliveryIsRetriedAfterTopUp(t *testing.T) {
	f := newIntakeFixture(t, 0)
	ctx := context.Background()

	first := f.deliver(t, testSecret, "d-1", `{"lead":"L-1"}`)
	require.Equal(t, fiber.StatusPaymentRequired, first.Status)

	again := f.deliver(t, testSecret, "d-1", `{"lead":"L-1"}`)
	assert.Equal(t, fiber.StatusPaymentRequired, again.Status, "a denied delivery is never reported as accepted")
	assert.False(t, again.Duplicate)

	_, err := f.billing.Recharge(ctx, f.workspace, 100, "top-up")
	require.NoError(t, err)

	replay := f.deliver(t, testSecret, "d-1", `{"lead":"L-1"}`)
	assert.Equal(t, fiber.StatusAccepted, replay.Status)
	assert.False(t, replay.Duplicate)
	assert.Equal(t, first.EventID, replay.EventID)
	require.NotNil(t, replay.Authorization)
	assert.Equal(t, int64(99), replay.Authorization.RemainingCredits)

	last := f.deliver(t, testSecret, "d-1", `{"lead":"L-1"}`)
	assert.Equal(t, fiber.StatusOK, last.Status)
	assert.True(t, last.Duplicate)

	usage, err := f.billing.Usage(ctx, f.workspace)
	require.NoError(t, err)
	assert.Equal(t, int64(99), usage.CreditsBalance)
	assert.Equal(t, int64(1), usage.CreditsUsedToday)
	assert.Equal(t, 1, f.counts[f.trigger.ID])
}

func TestHandleDelivery_ConcurrentReplaysChargeOnce(t *testing.T) {
	f := newIntakeFixture(t, 0)
	ctx := context.Background()

	require.Equal(t, fiber.StatusPaymentRequired, f.deliver(t, testSecret, "d-1", `{}`).Status)
	_, err := f.billing.Recharge(ctx, f.workspace, 50, "top-up")
	require.NoError(t, err)

	const attempts = 10
	statuses := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.svc.HandleDelivery(ctx, Delivery{
				Token:      f.trigger.WebhookToken,
				Secret:     testSecret,
				DeliveryID: "d-1",
				Body:       []byte(`{}`),
			})
			if err == nil {
				statuses[i] = out.Status
			}
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, st := range statuses {
		if st == fiber.StatusAccepted {
			accepted++
		} else {
			assert.Equal(t, fiber.StatusOK, st)
		}
	}
	assert.Equal(t, 1, accepted)

	usage, err := f.billing.Usage(ctx, f.workspace)
	require.NoError(t, err)
	assert.Equal(t, int64(49), usage.CreditsBalance)
	assert.Equal(t, 1, f.counts[f.trigger.ID])
}

func TestDeliveryIDFor(t *testing.T) {
	assert.Equal(t, "abc", DeliveryIDFor(" abc ", []byte(`{}`)))
	hashed := DeliveryIDFor("", []byte(`{}`))
	assert.Contains(t, hashed, "hash:")
	assert.Equal(t, hashed, DeliveryIDFor("", []byte(`{}`)))
	assert.Len(t, hashed, len("hash:")+64)
	assert.Len(t, DeliveryIDFor(strings.Repeat("x", 300), nil), 191)
}
