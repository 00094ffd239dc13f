package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditGate/internal/pkg/env"
	"github.com/ManuelReschke/CreditGate/internal/pkg/metrics/counter"
)

// Manager owns the dispatch queue and its background tickers
type Manager struct {
	queue              *Queue
	promoteInterval    time.Duration
	flushInterval      time.Duration
	promoteTicker      *time.Ticker
	counterFlushTicker *time.Ticker
	flushCounters      func(ctx context.Context) error
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

const (
	defaultPromoteInterval = 500 * time.Millisecond
	defaultFlushInterval   = 5 * time.Second
)

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global dispatch manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:           NewQueue(env.GetEnvInt("DISPATCH_WORKERS", 5)),
			promoteInterval: tickerInterval("DISPATCH_PROMOTE_INTERVAL", defaultPromoteInterval),
			flushInterval:   tickerInterval("COUNTER_FLUSH_INTERVAL", defaultFlushInterval),
			flushCounters:   counter.FlushAll,
			stopCh:          make(chan struct{}),
		}
	})
	return globalManager
}

// tickerInterval reads a ticker period; zero is not a valid period.
func tickerInterval(key string, def time.Duration) time.Duration {
	d := env.GetEnvDuration(key, def)
	if d <= 0 {
		log.Warnf("[Dispatch Manager] %s must be positive, using %s", key, def)
		return def
	}
	return d
}

// Configure sets the executor used by the queue workers
func (m *Manager) Configure(e *Executor) {
	m.queue.SetExecutor(e)
}

// GetQueue returns the managed queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the queue and the background tickers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Dispatch Manager] Starting dispatch queue and background tasks")

	m.queue.Start()

	if m.promoteInterval <= 0 {
		m.promoteInterval = defaultPromoteInterval
	}
	if m.flushInterval <= 0 {
		m.flushInterval = defaultFlushInterval
	}

	m.promoteTicker = time.NewTicker(m.promoteInterval)
	m.wg.Add(1)
	go m.promoteWorker(m.stopCh)

	m.counterFlushTicker = time.NewTicker(m.flushInterval)
	m.wg.Add(1)
	go m.counterFlushWorker(m.stopCh)

	log.Info("[Dispatch Manager] Started successfully")
}

// Stop stops the tickers, the queue, and flushes counters one last time
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Dispatch Manager] Stopping...")
	if m.promoteTicker != nil {
		m.promoteTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	close(m.stopCh)
	m.stopCh = nil
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.flushCounters(ctx); err != nil {
		log.Errorf("[Dispatch Manager] Final counter flush error: %v", err)
	}
	log.Info("[Dispatch Manager] Stopped successfully")
}

func (m *Manager) promoteWorker(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case now := <-m.promoteTicker.C:
			if _, err := m.queue.PromoteDue(context.Background(), now); err != nil {
				log.Errorf("[Dispatch Manager] Promote error: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes trigger usage counters from Redis to DB
func (m *Manager) counterFlushWorker(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-m.counterFlushTicker.C:
			if err := m.flushCounters(context.Background()); err != nil {
				log.Errorf("[Dispatch Manager] Counter flush error: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
