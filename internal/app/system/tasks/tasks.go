// internal/app/system/tasks/tasks.go
package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of scheduled work. Schedule is a standard five-field
// cron expression; the scheduler's own timezone is irrelevant for jobs that
// recompute per-tenant local time themselves.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration // per-run deadline; 0 means DefaultTimeout
	Run      func(ctx context.Context) error
}

// DefaultTimeout bounds a single job run.
const DefaultTimeout = 5 * time.Minute

// Scheduler runs registered jobs on their cron schedules. A failing run is
// logged and the schedule keeps firing; one job never blocks another.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  logger,
	}
}

// Add registers a job. It returns an error for an invalid cron expression.
func (s *Scheduler) Add(job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	_, err := s.cron.AddFunc(job.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		runID := uuid.NewString()
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.log.Error("scheduled job failed",
				zap.String("job", job.Name),
				zap.String("run_id", runID),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))
			return
		}
		s.log.Debug("scheduled job finished",
			zap.String("job", job.Name),
			zap.String("run_id", runID),
			zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return err
	}
	s.log.Info("scheduled job registered",
		zap.String("job", job.Name),
		zap.String("schedule", job.Schedule))
	return nil
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedules and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("task scheduler stopped")
}
