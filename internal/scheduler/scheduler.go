// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the callback invoked each time an entry fires. The context is the
// one passed to Start and is cancelled on shutdown.
type Job func(ctx context.Context)

// Scheduler runs the periodic jobs of the daemon. Every entry is wrapped so
// that a panic is recovered and a run is skipped while the previous one is
// still in progress.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a stopped Scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}
	return &Scheduler{
		logger: logger,
		ctx:    context.Background(),
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Every registers job to run every d. Intervals are rounded to whole
// seconds with a one second minimum.
func (s *Scheduler) Every(name string, d time.Duration, job Job) {
	s.cron.Schedule(cron.Every(d), s.wrap(name, job))
	s.logger.Info("scheduled job", "name", name, "every", d)
}

// Cron registers job on a cron expression.
func (s *Scheduler) Cron(name, spec string, job Job) error {
	if _, err := s.cron.AddJob(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("invalid cron schedule %q for %s: %w", spec, name, err)
	}
	s.logger.Info("scheduled job", "name", name, "schedule", spec)
	return nil
}

func (s *Scheduler) wrap(name string, job Job) cron.Job {
	return cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Debug("job firing", "name", name)
		job(s.ctx)
	})
}

// Start begins firing jobs. ctx is handed to every job run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
