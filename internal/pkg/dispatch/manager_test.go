package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func resetManager() {
	globalManager = nil
	managerOnce = sync.Once{}
}

func TestGetManager(t *testing.T) {
	resetManager()

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")
	assert.NotNil(t, manager1.GetQueue())
	assert.False(t, manager1.IsRunning())
	assert.Equal(t, 5, manager1.queue.workers)
}

func TestGetManager_RejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("DISPATCH_PROMOTE_INTERVAL", "0")
	t.Setenv("COUNTER_FLUSH_INTERVAL", "0s")
	resetManager()
	t.Cleanup(resetManager)

	m := GetManager()
	assert.Equal(t, defaultPromoteInterval, m.promoteInterval)
	assert.Equal(t, defaultFlushInterval, m.flushInterval)
}

func TestManager_StartWithZeroIntervals(t *testing.T) {
	client := newIsolatedRedisClient(t)

	m := &Manager{
		queue:         NewQueueWithClient(client, 1),
		flushCounters: func(context.Context) error { return nil },
	}
	e, _, _ := newTestExecutor(testTrigger("n8n"), &fakeDeliverer{})
	m.Configure(e)

	assert.NotPanics(t, m.Start)
	assert.Equal(t, defaultPromoteInterval, m.promoteInterval)
	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	resetManager()

	manager := GetManager()
	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_StartStopFlushesCounters(t *testing.T) {
	client := newIsolatedRedisClient(t)

	var flushes atomic.Int32
	m := &Manager{
		queue:           NewQueueWithClient(client, 1),
		promoteInterval: 20 * time.Millisecond,
		flushInterval:   time.Hour,
		flushCounters: func(context.Context) error {
			flushes.Add(1)
			return nil
		},
	}
	e, _, _ := newTestExecutor(testTrigger("n8n"), &fakeDeliverer{})
	m.Configure(e)

	m.Start()
	assert.True(t, m.IsRunning())
	assert.True(t, m.GetQueue().IsRunning())
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	assert.False(t, m.IsRunning())
	assert.False(t, m.GetQueue().IsRunning())
	assert.Equal(t, int32(1), flushes.Load(), "final flush on stop")
}
