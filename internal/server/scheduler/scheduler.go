// Package scheduler runs the time-triggered sweeps on cron schedules. A
// failing or panicking sweep is logged and never stops the scheduler, and
// a sweep still running when its next tick arrives is skipped.
package scheduler

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/robfig/cron/v3"
)

// Task is one scheduled sweep.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	tasks  []Task
	logger logging.Logger
}

// New validates every task's schedule. Specs use the standard five-field
// syntax and may carry a CRON_TZ= prefix or an @every descriptor.
func New(logger logging.Logger, tasks ...Task) (*Scheduler, error) {
	for _, t := range tasks {
		if t.Run == nil {
			return nil, fmt.Errorf("task %s has no function", t.Name)
		}
		if _, err := cron.ParseStandard(t.Spec); err != nil {
			return nil, fmt.Errorf("task %s: invalid schedule %q: %w", t.Name, t.Spec, err)
		}
	}
	return &Scheduler{tasks: tasks, logger: logger.With("module", "scheduler")}, nil
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	ctx context.Context
	l   logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(c.ctx, msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(c.ctx, msg, append(keysAndValues, "error", err)...)
}

func (s *Scheduler) job(ctx context.Context, t Task) func() {
	logger := s.logger.With("task", t.Name)
	return func() {
		if ctx.Err() != nil {
			return
		}
		logger.Debug(ctx, "task started")
		if err := t.Run(ctx); err != nil {
			logger.Error(ctx, "task failed", "error", err)
		}
	}
}

// Run starts the tasks and blocks until ctx is cancelled, then waits for
// running tasks to return.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{ctx: ctx, l: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, t := range s.tasks {
		if _, err := c.AddFunc(t.Spec, s.job(ctx, t)); err != nil {
			return fmt.Errorf("schedule %s: %w", t.Name, err)
		}
		s.logger.Info(ctx, "task scheduled", "task", t.Name, "spec", t.Spec)
	}

	c.Start()
	<-ctx.Done()

	s.logger.Info(ctx, "Stopping scheduler...")
	<-c.Stop().Done()
	return nil
}
