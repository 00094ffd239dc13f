package apiv1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/app/repository"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/dispatch"
	"github.com/ManuelReschke/CreditGate/internal/pkg/intake"
	"github.com/ManuelReschke/CreditGate/internal/pkg/middleware"
	"github.com/ManuelReschke/CreditGate/internal/pkg/statistics"
)

const (
	testAdminToken  = "admin-token"
	testTokenSecret = "token-secret"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*dispatch.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *dispatch.Job) (*dispatch.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	job.ID = "job-" + job.TriggerID
	q.jobs = append(q.jobs, job)
	return job, nil
}

type fakeStats struct {
	snap *statistics.Snapshot
}

func (f fakeStats) Snapshot(context.Context) (*statistics.Snapshot, error) {
	return f.snap, nil
}

type fakeJobStats map[dispatch.JobStatus]int64

func (f fakeJobStats) Stats(context.Context) (map[dispatch.JobStatus]int64, error) {
	return f, nil
}

type testEnv struct {
	app     *fiber.App
	server  *APIServer
	billing *billing.Service
	queue   *fakeQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := billing.NewMemoryRepository()
	billingSvc := billing.NewService(store)
	repos := repository.NewMemoryRepositories(store)
	intakeSvc := intake.NewService(repos.IncomingTrigger, repos.TriggerEvent, billingSvc, nil, 3)
	queue := &fakeQueue{}

	server := NewAPIServer(billingSvc, repos, intakeSvc, queue, Config{
		PublicBaseURL: "https://gate.example.com",
		TokenSecret:   testTokenSecret,
		TokenTTL:      time.Hour,
	})
	mw := Middlewares{
		WorkspaceAuth: middleware.APIKeyAuthMiddleware(repos.Subscription),
		AdminAuth:     middleware.AdminTokenMiddleware(testAdminToken),
	}

	app := fiber.New()
	RegisterHandlers(app.Group("/api/v1"), server, mw)
	RegisterHooks(app, server, mw)

	return &testEnv{app: app, server: server, billing: billingSvc, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) openWorkspace(t *testing.T, plan string, credits int64) (string, string) {
	t.Helper()
	status, body := e.do(t, "POST", "/api/v1/admin/workspaces",
		map[string]interface{}{"plan_tier": plan, "initial_credits": credits},
		map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["workspace_id"].(string), body["api_key"].(string)
}

func apiKey(key string) map[string]string {
	return map[string]string{"X-API-Key": key}
}

func TestPingAndPricing(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(t, "GET", "/api/v1/ping", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "pong", body["ping"])

	status, body = e.do(t, "GET", "/api/v1/pricing", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	actions := body["actions"].(map[string]interface{})
	assert.Equal(t, float64(15), actions["voice_call"])
	plans := body["plans"].(map[string]interface{})
	starter := plans["starter"].(map[string]interface{})
	assert.Equal(t, float64(3), starter["max_outgoing_triggers"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(t, "POST", "/api/v1/admin/workspaces", map[string]interface{}{"plan_tier": "pro"}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	status, body = e.do(t, "POST", "/api/v1/admin/workspaces",
		map[string]interface{}{"plan_tier": "platinum"},
		map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["error"])
}

func TestWorkspaceRoutesRequireAPIKey(t *testing.T) {
	e := newTestEnv(t)

	status, _ := e.do(t, "GET", "/api/v1/usage", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = e.do(t, "GET", "/api/v1/usage", nil, apiKey("cg_unknown"))
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAuthorizeAndRefundFlow(t *testing.T) {
	e := newTestEnv(t)
	_, key := e.openWorkspace(t, "starter", 10)

	status, body := e.do(t, "POST", "/api/v1/authorizations", map[string]string{"action_type": "ai_message"}, apiKey(key))
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(7), body["remaining_credits"])
	token := body["token"].(string)
	require.NotEmpty(t, token)

	status, body = e.do(t, "POST", "/api/v1/refunds", map[string]string{"token": token}, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, float64(10), body["remaining_credits"])

	status, body = e.do(t, "POST", "/api/v1/refunds", map[string]string{"token": token}, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "already_refunded", body["error"])

	status, body = e.do(t, "POST", "/api/v1/refunds", map[string]string{"token": "garbage"}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_token", body["error"])
}

func TestAuthorizeDenials(t *testing.T) {
	e := newTestEnv(t)
	workspaceID, key := e.openWorkspace(t, "starter", 2)

	status, body := e.do(t, "POST", "/api/v1/authorizations", map[string]string{"action_type": "image_gen"}, apiKey(key))
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, "InsufficientCredits", body["message"])

	status, _ = e.do(t, "PUT", "/api/v1/admin/workspaces/"+workspaceID+"/standing",
		map[string]interface{}{"status": "suspended"},
		map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, fiber.StatusOK, status)

	status, body = e.do(t, "POST", "/api/v1/authorizations", map[string]string{"action_type": "trigger_hit"}, apiKey(key))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, intake.CodeRevenueLock, body["error"])
	assert.Equal(t, "SubscriptionInactive", body["message"])

	status, body = e.do(t, "POST", "/api/v1/authorizations", map[string]string{}, apiKey(key))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["error"])
}

func TestUsageLedgerAndRecharge(t *testing.T) {
	e := newTestEnv(t)
	workspaceID, key := e.openWorkspace(t, "growth", 5)

	status, _ := e.do(t, "POST", "/api/v1/admin/workspaces/"+workspaceID+"/credits",
		map[string]interface{}{"credits": 20, "reference": "inv-1"},
		map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = e.do(t, "POST", "/api/v1/authorizations", map[string]string{"action_type": "lead_score"}, apiKey(key))
	require.Equal(t, fiber.StatusOK, status)

	status, body := e.do(t, "GET", "/api/v1/usage", nil, apiKey(key))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(23), body["credits_balance"])
	assert.Equal(t, float64(2), body["credits_used_today"])
	assert.Equal(t, float64(600), body["daily_credits_limit"])

	status, body = e.do(t, "GET", "/api/v1/ledger?limit=10", nil, apiKey(key))
	require.Equal(t, fiber.StatusOK, status)
	entries := body["entries"].([]interface{})
	require.Len(t, entries, 3)
	newest := entries[0].(map[string]interface{})
	assert.Equal(t, models.LedgerKindDebit, newest["kind"])

	status, _ = e.do(t, "GET", "/api/v1/ledger?limit=abc", nil, apiKey(key))
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = e.do(t, "POST", "/api/v1/admin/workspaces/"+workspaceID+"/credits",
		map[string]interface{}{"credits": 0},
		map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, fiber.StatusBadRequest, status, body)
}

func TestChangePlanAndRotateKey(t *testing.T) {
	e := newTestEnv(t)
	workspaceID, key := e.openWorkspace(t, "free", 0)
	admin := map[string]string{"X-Admin-Token": testAdminToken}

	status, body := e.do(t, "PUT", "/api/v1/admin/workspaces/"+workspaceID+"/plan", map[string]string{"plan_tier": "pro"}, admin)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "pro", body["plan_tier"])
	assert.Equal(t, float64(2000), body["daily_credits_limit"])
	assert.Equal(t, "free", body["previous_plan_tier"])
	assert.Equal(t, false, body["downgrade"])

	status, body = e.do(t, "POST", "/api/v1/admin/workspaces/"+workspaceID+"/api-key", nil, admin)
	require.Equal(t, fiber.StatusOK, status)
	newKey := body["api_key"].(string)
	assert.NotEqual(t, key, newKey)

	status, _ = e.do(t, "GET", "/api/v1/usage", nil, apiKey(key))
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = e.do(t, "GET", "/api/v1/usage", nil, apiKey(newKey))
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = e.do(t, "GET", "/api/v1/admin/workspaces/missing", nil, admin)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestIncomingTriggerLifecycleAndLimit(t *testing.T) {
	e := newTestEnv(t)
	_, key := e.openWorkspace(t, "free", 10)

	status, body := e.do(t, "POST", "/api/v1/triggers/incoming",
		map[string]string{"name": "Form", "type": "lead_ingestion"}, apiKey(key))
	require.Equal(t, fiber.StatusCreated, status, body)
	id := body["id"].(string)
	secret := body["secret"].(string)
	webhookURL := body["webhook_url"].(string)
	assert.Contains(t, webhookURL, "https://gate.example.com/hooks/hk_")
	assert.NotContains(t, body, "secret_hash")

	// free plan allows one active incoming trigger
	status, body = e.do(t, "POST", "/api/v1/triggers/incoming",
		map[string]string{"name": "Second", "type": "custom_webhook"}, apiKey(key))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "limit_reached", body["error"])

	status, body = e.do(t, "PATCH", "/api/v1/triggers/incoming/"+id, map[string]string{"status": "paused"}, apiKey(key))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "paused", body["status"])

	status, _ = e.do(t, "POST", "/api/v1/triggers/incoming",
		map[string]string{"name": "Second", "type": "custom_webhook"}, apiKey(key))
	require.Equal(t, fiber.StatusCreated, status)

	// resuming goes through the same gate
	status, body = e.do(t, "PATCH", "/api/v1/triggers/incoming/"+id, map[string]string{"status": "active"}, apiKey(key))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "limit_reached", body["error"])

	status, body = e.do(t, "GET", "/api/v1/triggers/incoming", nil, apiKey(key))
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["triggers"], 2)

	status, _ = e.do(t, "DELETE", "/api/v1/triggers/incoming/"+id, nil, apiKey(key))
	assert.Equal(t, fiber.StatusNoContent, status)
	status, _ = e.do(t, "DELETE", "/api/v1/triggers/incoming/"+id, nil, apiKey(key))
	assert.Equal(t, fiber.StatusNotFound, status)

	assert.NotEmpty(t, secret)
}

func TestHookIntake(t *testing.T) {
	e := newTestEnv(t)
	_, key := e.openWorkspace(t, "starter", 1)

	status, body := e.do(t, "POST", "/api/v1/triggers/incoming",
		map[string]string{"name": "CRM", "type": "external_crm_push"}, apiKey(key))
	require.Equal(t, fiber.StatusCreated, status)
	secret := body["secret"].(string)
	path := "/hooks/" + body["webhook_url"].(string)[len("https://gate.example.com/hooks/"):]

	status, body = e.do(t, "POST", path, `{"lead":1}`, map[string]string{dispatch.HeaderSecret: "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, intake.CodeInvalidSignature, body["error"])

	headers := map[string]string{dispatch.HeaderSecret: secret, "X-Delivery-ID": "evt-1"}
	status, body = e.do(t, "POST", path, `{"lead":1}`, headers)
	require.Equal(t, fiber.StatusAccepted, status, body)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, float64(0), body["remaining_credits"])

	status, body = e.do(t, "POST", path, `{"lead":1}`, headers)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	headers["X-Delivery-ID"] = "evt-2"
	status, body = e.do(t, "POST", path, `{"lead":2}`, headers)
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, "InsufficientCredits", body["reason"])

	status, body = e.do(t, "POST", path, `{"lead":2}`, headers)
	assert.Equal(t, fiber.StatusPaymentRequired, status, "a denied delivery stays denied on redelivery")
	assert.Nil(t, body["accepted"])

	status, body = e.do(t, "POST", "/hooks/hk_unknown", `{}`, headers)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, intake.CodeTriggerNotFound, body["error"])
}

func TestOutgoingTriggersAndBroadcast(t *testing.T) {
	e := newTestEnv(t)
	_, key := e.openWorkspace(t, "starter", 2)

	create := func(name, event string) string {
		status, body := e.do(t, "POST", "/api/v1/triggers/outgoing", map[string]string{
			"name":             name,
			"event_type":       event,
			"destination_type": "n8n",
			"destination_url":  "https://n8n.example.com/webhook/" + name,
			"retry_policy":     "exponential",
		}, apiKey(key))
		require.Equal(t, fiber.StatusCreated, status, body)
		assert.NotEmpty(t, body["secret"])
		return body["id"].(string)
	}
	a := create("a", models.EventLeadCreated)
	b := create("b", models.EventLeadCreated)
	create("c", models.EventMeetingBooked)

	status, body := e.do(t, "POST", "/api/v1/triggers/outgoing", map[string]string{
		"name":             "d",
		"event_type":       models.EventLeadCreated,
		"destination_type": "slack",
		"destination_url":  "https://hooks.slack.com/x",
	}, apiKey(key))
	assert.Equal(t, fiber.StatusForbidden, status, "starter allows three outgoing triggers")
	assert.Equal(t, "limit_reached", body["error"])

	status, _ = e.do(t, "PATCH", "/api/v1/triggers/outgoing/"+b, map[string]string{"status": "paused"}, apiKey(key))
	require.Equal(t, fiber.StatusOK, status)

	status, body = e.do(t, "POST", "/api/v1/triggers/outgoing", map[string]string{
		"name":             "bad",
		"event_type":       "lead.deleted",
		"destination_type": "n8n",
		"destination_url":  "https://n8n.example.com",
	}, apiKey(key))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["error"])

	status, body = e.do(t, "POST", "/api/v1/events", map[string]interface{}{
		"event_type": models.EventLeadCreated,
		"payload":    map[string]string{"lead_id": "L-1"},
	}, apiKey(key))
	require.Equal(t, fiber.StatusAccepted, status, body)
	assert.Equal(t, float64(1), body["matched"])
	assert.Equal(t, float64(1), body["queued"])

	require.Len(t, e.queue.jobs, 1)
	job := e.queue.jobs[0]
	assert.Equal(t, a, job.TriggerID)
	assert.NotEmpty(t, job.AuthorizationID)
	assert.JSONEq(t, `{"lead_id":"L-1"}`, string(job.Payload))

	// one credit left: first dispatch allowed, then insufficient
	e.do(t, "POST", "/api/v1/events", map[string]interface{}{"event_type": models.EventLeadCreated}, apiKey(key))
	status, body = e.do(t, "POST", "/api/v1/events", map[string]interface{}{"event_type": models.EventLeadCreated}, apiKey(key))
	require.Equal(t, fiber.StatusAccepted, status)
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "InsufficientCredits", results[0].(map[string]interface{})["reason"])
}

func TestBroadcastRefundsWhenEnqueueFails(t *testing.T) {
	e := newTestEnv(t)
	workspaceID, key := e.openWorkspace(t, "starter", 5)
	e.queue.err = errors.New("redis down")

	status, body := e.do(t, "POST", "/api/v1/triggers/outgoing", map[string]string{
		"name":             "a",
		"event_type":       models.EventCallCompleted,
		"destination_type": "custom_webhook",
		"destination_url":  "https://example.com/hook",
	}, apiKey(key))
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = e.do(t, "POST", "/api/v1/events", map[string]interface{}{"event_type": models.EventCallCompleted}, apiKey(key))
	require.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, float64(0), body["queued"])

	usage, err := e.billing.Usage(context.Background(), workspaceID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), usage.CreditsBalance)
}

// staleOutgoingTriggers lists a trigger that is already gone from the store,
// as when it is deleted between listing and authorization.
type staleOutgoingTriggers struct {
	repository.OutgoingTriggerRepository
	gone models.OutgoingTrigger
}

func (r staleOutgoingTriggers) ListActiveByEvent(ctx context.Context, workspaceID, eventType string) ([]models.OutgoingTrigger, error) {
	list, err := r.OutgoingTriggerRepository.ListActiveByEvent(ctx, workspaceID, eventType)
	if err != nil {
		return nil, err
	}
	return append([]models.OutgoingTrigger{r.gone}, list...), nil
}

func TestBroadcastSurvivesTriggerRemovedMidway(t *testing.T) {
	e := newTestEnv(t)
	workspaceID, key := e.openWorkspace(t, "starter", 5)

	status, body := e.do(t, "POST", "/api/v1/triggers/outgoing", map[string]string{
		"name":             "live",
		"event_type":       models.EventLeadCreated,
		"destination_type": "n8n",
		"destination_url":  "https://n8n.example.com/webhook/live",
	}, apiKey(key))
	require.Equal(t, fiber.StatusCreated, status, body)
	liveID := body["id"].(string)

	e.server.repos.OutgoingTrigger = staleOutgoingTriggers{
		OutgoingTriggerRepository: e.server.repos.OutgoingTrigger,
		gone: models.OutgoingTrigger{
			ID:          "deleted-trigger",
			WorkspaceID: workspaceID,
			EventType:   models.EventLeadCreated,
			Status:      models.TriggerStatusActive,
		},
	}

	status, body = e.do(t, "POST", "/api/v1/events", map[string]interface{}{"event_type": models.EventLeadCreated}, apiKey(key))
	require.Equal(t, fiber.StatusAccepted, status, body)
	assert.Equal(t, float64(2), body["matched"])
	assert.Equal(t, float64(1), body["queued"])

	results := body["results"].([]interface{})
	byTrigger := map[string]map[string]interface{}{}
	for _, r := range results {
		m := r.(map[string]interface{})
		byTrigger[m["trigger_id"].(string)] = m
	}
	assert.Equal(t, "trigger_not_found", byTrigger["deleted-trigger"]["error"])
	assert.Equal(t, true, byTrigger[liveID]["queued"])

	require.Len(t, e.queue.jobs, 1)
	assert.Equal(t, liveID, e.queue.jobs[0].TriggerID)

	usage, err := e.billing.Usage(context.Background(), workspaceID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), usage.CreditsBalance, "only the live trigger is charged")
}

func TestAdminStats(t *testing.T) {
	e := newTestEnv(t)
	admin := map[string]string{"X-Admin-Token": testAdminToken}

	status, body := e.do(t, "GET", "/api/v1/admin/stats", nil, admin)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "stats_unavailable", body["error"])

	e.server.SetStatistics(fakeStats{snap: &statistics.Snapshot{Date: "2026-03-14", Workspaces: 4, CreditsDebitedToday: 12}}, nil)
	status, body = e.do(t, "GET", "/api/v1/admin/stats", nil, admin)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(4), body["workspaces"])
	assert.Equal(t, float64(12), body["credits_debited_today"])
	assert.Nil(t, body["dispatch"])

	e.server.SetStatistics(fakeStats{snap: &statistics.Snapshot{Date: "2026-03-14"}}, fakeJobStats{
		dispatch.JobStatusCompleted: 7,
		dispatch.JobStatusFailed:    1,
	})
	status, body = e.do(t, "GET", "/api/v1/admin/stats", nil, admin)
	require.Equal(t, fiber.StatusOK, status)
	jobs, ok := body["dispatch"].(map[string]interface{})
	require.True(t, ok, body)
	assert.Equal(t, float64(7), jobs[string(dispatch.JobStatusCompleted)])
	assert.Equal(t, float64(1), jobs[string(dispatch.JobStatusFailed)])
}
