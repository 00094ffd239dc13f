package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CreditGate/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "dispatch:job:"
	QueueKey         = "dispatch_queue"
	ProcessingKey    = "dispatch_processing"
	DelayedKey       = "dispatch_delayed"
	StatsKey         = "dispatch_stats"
	JobTTL           = 24 * time.Hour
	promoteBatchSize = 100
)

// promoteScript moves due jobs from the delayed set onto the pending list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #due
`)

// Queue delivers dispatch jobs using Redis lists
type Queue struct {
	client     *redis.Client
	executor   *Executor
	workers    int
	workerPool chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new dispatch queue on the shared cache client
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(cache.GetClient(), workers)
}

// NewQueueWithClient creates a queue on an explicit Redis client
func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 5
	}
	return &Queue{
		client:     client,
		workers:    workers,
		workerPool: make(chan struct{}, workers),
	}
}

// SetExecutor configures how jobs are delivered
func (q *Queue) SetExecutor(e *Executor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.executor = e
}

// Start starts the queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	if q.executor == nil {
		log.Error("[Dispatch] Refusing to start queue without executor")
		return
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.running = true
	log.Infof("[Dispatch] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recover jobs left in processing by a crashed worker
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, time.Minute)
}

// Stop cancels in-flight waits and blocks until all workers returned
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Info("[Dispatch] Stopping workers...")
	q.cancel()
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	// Drain pool so a restart refills it
	for len(q.workerPool) > 0 {
		<-q.workerPool
	}
	log.Info("[Dispatch] All workers stopped")
}

// IsRunning reports whether workers are active
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Debugf("[Dispatch] Worker %d started", id)

	for {
		select {
		case <-q.ctx.Done():
			log.Debugf("[Dispatch] Worker %d stopping", id)
			return
		case <-q.workerPool:
		}

		job, err := q.dequeue(q.ctx)
		if err != nil {
			if !errors.Is(err, redis.Nil) && q.ctx.Err() == nil {
				log.Errorf("[Dispatch] Worker %d: Error dequeuing job: %v", id, err)
				q.workerPool <- struct{}{}
				sleepCtx(q.ctx, time.Second)
				continue
			}
			q.workerPool <- struct{}{}
			continue
		}

		if job != nil {
			q.Process(q.ctx, job)
		}
		q.workerPool <- struct{}{}
	}
}

// Enqueue stores the job and pushes it onto the pending list
func (q *Queue) Enqueue(ctx context.Context, job *Job) (*Job, error) {
	now := time.Now()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.OccurredAt.IsZero() {
		job.OccurredAt = now
	}
	job.Status = JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, QueueKey, job.ID)
	pipe.HIncrBy(ctx, StatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[Dispatch] Enqueued job %s (event %s, trigger %s)", job.ID, job.EventType, job.TriggerID)
	return job, nil
}

func (q *Queue) dequeue(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, QueueKey, ProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.removeFromProcessing(ctx, id)
		return nil, fmt.Errorf("job data not usable for ID %s: %w", id, err)
	}
	return job, nil
}

// Process runs one attempt for a dequeued job and applies the decision
func (q *Queue) Process(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	decision := q.executor.Attempt(ctx, job)

	switch decision.Action {
	case ActionComplete:
		job.MarkAsCompleted()
		q.finish(ctx, job)
		q.removeJob(ctx, job.ID)
	case ActionRetry:
		job.MarkAsRetrying(decision.Reason)
		q.updateJob(ctx, job)
		q.removeFromProcessing(ctx, job.ID)
		if err := q.scheduleRetry(ctx, job.ID, decision.Delay); err != nil {
			log.Errorf("[Dispatch] Failed to schedule retry for job %s: %v", job.ID, err)
		}
	case ActionCancel:
		log.Infof("[Dispatch] Job %s cancelled: %s", job.ID, decision.Reason)
		job.MarkAsCancelled(decision.Reason)
		q.finish(ctx, job)
	default:
		log.Errorf("[Dispatch] Job %s permanently failed after %d attempts: %s", job.ID, job.Attempts, decision.Reason)
		job.MarkAsFailed(decision.Reason)
		q.finish(ctx, job)
	}
}

func (q *Queue) finish(ctx context.Context, job *Job) {
	// Refunds must happen even when Stop cancelled the worker context.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	q.executor.Settle(settleCtx, job)
	q.updateJob(settleCtx, job)
	q.updateStats(settleCtx, job.Status, 1)
	q.removeFromProcessing(settleCtx, job.ID)
}

// scheduleRetry re-pushes instant retries to the consuming end of the list so
// they run next; delayed retries wait in the sorted set.
func (q *Queue) scheduleRetry(ctx context.Context, id string, delay time.Duration) error {
	ctx = context.WithoutCancel(ctx)
	if delay <= 0 {
		return q.client.RPush(ctx, QueueKey, id).Err()
	}
	due := time.Now().Add(delay).UnixMilli()
	return q.client.ZAdd(ctx, DelayedKey, redis.Z{Score: float64(due), Member: id}).Err()
}

// PromoteDue moves every delayed job whose time has come onto the pending list
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.client, []string{DelayedKey, QueueKey},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatchSize).Int()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Debugf("[Dispatch] Promoted %d delayed jobs", n)
	}
	return n, nil
}

func (q *Queue) stuckSweeper(maxAge, interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			if n, err := q.RecoverStuck(q.ctx, maxAge); err != nil {
				log.Errorf("[Dispatch] Sweeper error: %v", err)
			} else if n > 0 {
				log.Warnf("[Dispatch] Sweeper recovered %d stuck jobs", n)
			}
		}
	}
}

// RecoverStuck requeues jobs that stayed in processing longer than maxAge
func (q *Queue) RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, ProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	recovered := 0
	now := time.Now()
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			_ = q.client.LRem(ctx, ProcessingKey, 1, id).Err()
			continue
		}
		if job.Status != JobStatusProcessing {
			_ = q.client.LRem(ctx, ProcessingKey, 1, id).Err()
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)
		_ = q.client.LRem(ctx, ProcessingKey, 1, id).Err()
		if err := q.client.RPush(ctx, QueueKey, id).Err(); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[Dispatch] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(context.WithoutCancel(ctx), JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[Dispatch] Failed to update job %s: %v", job.ID, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, id string) {
	if err := q.client.LRem(context.WithoutCancel(ctx), ProcessingKey, 1, id).Err(); err != nil {
		log.Errorf("[Dispatch] Failed to remove job %s from processing list: %v", id, err)
	}
}

func (q *Queue) removeJob(ctx context.Context, id string) {
	if err := q.client.Del(context.WithoutCancel(ctx), JobKeyPrefix+id).Err(); err != nil {
		log.Errorf("[Dispatch] Failed to remove completed job %s: %v", id, err)
	}
}

func (q *Queue) updateStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, StatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[Dispatch] Failed to update stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Stats returns terminal and pending counts by status
func (q *Queue) Stats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, StatsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[JobStatus]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[JobStatus(k)] = n
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
