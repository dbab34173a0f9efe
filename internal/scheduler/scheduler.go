// Package scheduler runs jobs on cron schedules and keeps the outcome of
// their latest runs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a scheduled job.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Observer is told about every finished run, normally the metrics recorder.
type Observer interface {
	RunFinished(job string, err error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithObserver reports each run to o.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// Scheduler manages background jobs. A job whose previous run is still
// going is skipped rather than stacked.
type Scheduler struct {
	cron     *cron.Cron
	tracker  *Tracker
	observer Observer
	timeout  time.Duration
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a scheduler. Schedules have a leading seconds field.
func New(log zerolog.Logger, opts ...Option) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		tracker: NewTracker(),
		timeout: 6 * time.Hour,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Tracker returns the run history.
func (s *Scheduler) Tracker() *Tracker {
	return s.tracker
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "0 30 18 * * MON-FRI" - 18:30 on weekdays
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}
	s.tracker.Register(job.Name(), schedule, func() time.Time { return s.cron.Entry(id).Next })

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.run(job)
}

func (s *Scheduler) run(job Job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	name := job.Name()
	s.tracker.Started(name)
	s.log.Debug().Str("job", name).Msg("Running job")

	err := job.Run(ctx)
	s.tracker.Finished(name, err)
	if s.observer != nil {
		s.observer.RunFinished(name, err)
	}
	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", name).Msg("Job completed")
	}
	return err
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
