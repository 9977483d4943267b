// Package scheduler runs the backup job on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one scheduled run
type Job func(ctx context.Context)

// Scheduler handles cron scheduling for backup runs
type Scheduler struct {
	cronScheduler *cron.Cron
	log           logrus.FieldLogger
	entryID       cron.EntryID
}

// NewScheduler creates a scheduler whose runs never overlap
func NewScheduler(log logrus.FieldLogger) *Scheduler {
	logger := cron.PrintfLogger(log)
	return &Scheduler{
		cronScheduler: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		log: log,
	}
}

// Schedule registers job under a standard five-field cron expression or descriptor.
// Each run receives ctx.
func (s *Scheduler) Schedule(ctx context.Context, spec string, job Job) error {
	id, err := s.cronScheduler.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.log.Info("Starting scheduled backup run")
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}

	s.entryID = id
	s.log.WithField("schedule", spec).Info("Scheduled backup run")
	return nil
}

// NextRun returns when the job runs next, or the zero time when it is not running
func (s *Scheduler) NextRun() time.Time {
	return s.cronScheduler.Entry(s.entryID).Next
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for a
// running job to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.cronScheduler.Start()
	s.log.WithField("next_run", s.NextRun()).Info("Backup scheduler started")

	<-ctx.Done()

	<-s.cronScheduler.Stop().Done()
	s.log.Info("Backup scheduler stopped")
}
