package apiv1

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/CreditGate/app/repository"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
	"github.com/ManuelReschke/CreditGate/internal/pkg/dispatch"
	"github.com/ManuelReschke/CreditGate/internal/pkg/intake"
	"github.com/ManuelReschke/CreditGate/internal/pkg/statistics"
)

// Enqueuer hands dispatch jobs to the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *dispatch.Job) (*dispatch.Job, error)
}

// StatsProvider returns the platform statistics shown to operators.
type StatsProvider interface {
	Snapshot(ctx context.Context) (*statistics.Snapshot, error)
}

// QueueStats reports dispatch job counts by status.
type QueueStats interface {
	Stats(ctx context.Context) (map[dispatch.JobStatus]int64, error)
}

// Config carries the settings the handlers need.
type Config struct {
	PublicBaseURL    string
	TokenSecret      string
	TokenTTL         time.Duration
	BroadcastWorkers int
}

// APIServer serves the management API and webhook intake
type APIServer struct {
	billing  *billing.Service
	repos    *repository.Repositories
	intake   *intake.Service
	queue    Enqueuer
	stats    StatsProvider
	jobs     QueueStats
	config   Config
	validate *validator.Validate
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billingService *billing.Service, repos *repository.Repositories, intakeService *intake.Service, queue Enqueuer, cfg Config) *APIServer {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BroadcastWorkers <= 0 {
		cfg.BroadcastWorkers = 4
	}
	return &APIServer{
		billing:  billingService,
		repos:    repos,
		intake:   intakeService,
		queue:    queue,
		config:   cfg,
		validate: validator.New(),
	}
}

// SetStatistics enables GET /admin/stats. jobs may be nil.
func (s *APIServer) SetStatistics(p StatsProvider, jobs QueueStats) {
	s.stats = p
	s.jobs = jobs
}
