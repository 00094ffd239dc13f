package archive

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

type cronLogger struct{}

func (cronLogger) Printf(format string, args ...interface{}) {
	log.Infof("[Archive] "+format, args...)
}

// Scheduler runs the daily export of the previous UTC day.
type Scheduler struct {
	cron     *cron.Cron
	exporter *Exporter
	schedule string
	now      func() time.Time
}

func NewScheduler(exporter *Exporter, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.PrintfLogger(cronLogger{}))),
	)
	return &Scheduler{
		cron:     c,
		exporter: exporter,
		schedule: schedule,
		now:      time.Now,
	}
}

// Start registers the export job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runPreviousDay); err != nil {
		log.Errorf("[Archive] Failed to schedule ledger export %q: %v", s.schedule, err)
		return err
	}
	log.Infof("[Archive] Scheduled ledger export (%s UTC)", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once a running export finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runPreviousDay() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	day := s.now().UTC().AddDate(0, 0, -1)
	if _, err := s.exporter.ExportDay(ctx, day); err != nil {
		log.Errorf("[Archive] Ledger export for %s failed: %v", day.Format("2006-01-02"), err)
	}
}
