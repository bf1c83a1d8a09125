package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// Job is a periodic background task
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	// Timeout bounds one run. Zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs periodic jobs. A job never overlaps itself within the
// process: a run that is still going when the next tick fires causes that
// tick to be skipped.
type Scheduler struct {
	inner gocron.Scheduler
}

// New creates a stopped scheduler
func New() (*Scheduler, error) {
	inner, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{inner: inner}, nil
}

// Register adds job. ctx is passed to every run and cancels in-flight runs
// when it is done.
func (s *Scheduler) Register(ctx context.Context, job Job) (uuid.UUID, error) {
	if job.Interval <= 0 {
		return uuid.Nil, fmt.Errorf("job %s: interval must be positive", job.Name)
	}

	opts := []gocron.JobOption{
		gocron.WithName(job.Name),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if job.RunOnStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	j, err := s.inner.NewJob(
		gocron.DurationJob(job.Interval),
		gocron.NewTask(func(ctx context.Context) {
			_ = runJob(ctx, job)
		}),
		opts...,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	observability.GetLogger().Info().
		Str("job", job.Name).
		Str("job_id", j.ID().String()).
		Dur("interval", job.Interval).
		Msg("scheduled job registered")
	return j.ID(), nil
}

// runJob executes one run under the job's timeout. A panic is logged and
// swallowed so the next tick still fires.
func runJob(ctx context.Context, job Job) (err error) {
	logger := observability.ComponentLogger(ctx, "scheduler")
	start := time.Now()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = job.Interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
			logger.Error().
				Str("job", job.Name).
				Str("stack", string(debug.Stack())).
				Err(err).
				Msg("scheduled job panicked")
		}
	}()

	if err = job.Run(ctx); err != nil {
		logger.Error().Err(err).Str("job", job.Name).Dur("took", time.Since(start)).Msg("scheduled job failed")
		return err
	}
	logger.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("scheduled job finished")
	return nil
}

// Start begins running registered jobs
func (s *Scheduler) Start() {
	s.inner.Start()
}

// Shutdown stops scheduling and waits for running jobs
func (s *Scheduler) Shutdown() error {
	return s.inner.Shutdown()
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.inner.Jobs())
}
