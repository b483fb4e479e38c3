// Package scheduler runs periodic maintenance jobs on a cron engine.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/logging"
)

// EveryMinute is the cron spec used by the sweep jobs.
const EveryMinute = "@every 1m"

// SweepFunc removes stale entries and reports how many were dropped.
type SweepFunc func() int

// Scheduler wraps a cron engine with logged, panic-safe jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Entry
	jobs   []string
}

// New constructs an idle Scheduler using UTC.
func New(logger *logrus.Entry) *Scheduler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
	}
}

// AddSweep registers fn under name on spec.
func (s *Scheduler) AddSweep(name, spec string, fn SweepFunc) error {
	if fn == nil {
		return errors.New("sweep function is required")
	}

	if _, err := s.cron.AddFunc(spec, s.wrap(name, fn)); err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	s.jobs = append(s.jobs, name)

	return nil
}

func (s *Scheduler) wrap(name string, fn SweepFunc) func() {
	logger := s.logger.WithField("job", name)

	return func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logging.Fields{
					"event": "job_panic",
					"panic": fmt.Sprint(r),
				}).Error("recovered panic in scheduled job")
			}
		}()

		if removed := fn(); removed > 0 {
			logger.WithFields(logging.Fields{
				"event":   "job_swept",
				"removed": removed,
			}).Debug("scheduled sweep removed entries")
		}
	}
}

// Start runs the engine in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(logging.Fields{
		"event": "scheduler_started",
		"jobs":  s.jobs,
	}).Info("scheduler started")
}

// Stop halts new runs and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.WithField("event", "scheduler_stopped").Info("scheduler stopped")
}
