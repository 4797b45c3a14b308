package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// Exclusive jobs touch the portfolio and never overlap with each other.
	Exclusive bool
	Run       func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker. Exclusive jobs share an
// in-process mutex and, when a LockManager is set, a distributed lock so
// that no two cycles run at once across instances.
type Scheduler struct {
	jobs    []Job
	locks   domain.LockManager
	lockKey string
	lockTTL time.Duration
	logger  *slog.Logger

	cycle sync.Mutex
}

// NewScheduler creates a Scheduler. locks may be nil.
func NewScheduler(jobs []Job, locks domain.LockManager, lockKey string, lockTTL time.Duration, logger *slog.Logger) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Scheduler{
		jobs:    jobs,
		locks:   locks,
		lockKey: lockKey,
		lockTTL: lockTTL,
		logger:  logger.With(slog.String("component", "scheduler")),
	}
}

// Run blocks until ctx is cancelled. Job errors are logged and the job keeps
// its schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			continue
		}
		g.Go(func() error {
			s.logger.InfoContext(ctx, "job scheduled",
				slog.String("job", job.Name),
				slog.Duration("interval", job.Interval),
			)
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.tick(ctx, job)
				}
			}
		})
	}
	return g.Wait()
}

// RunOnce runs job immediately, taking the cycle locks when it is
// exclusive. A held distributed lock is reported as domain.ErrLockHeld.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	if job.Exclusive {
		s.cycle.Lock()
		defer s.cycle.Unlock()

		if s.locks != nil {
			unlock, err := s.locks.Acquire(ctx, s.lockKey, s.lockTTL)
			if err != nil {
				return fmt.Errorf("scheduler: %s: cycle lock: %w", job.Name, err)
			}
			defer unlock()
		}
	}
	return safeRun(ctx, job)
}

func (s *Scheduler) tick(ctx context.Context, job Job) {
	start := time.Now()
	err := s.RunOnce(ctx, job)
	switch {
	case err == nil:
		s.logger.DebugContext(ctx, "job finished",
			slog.String("job", job.Name),
			slog.Duration("duration", time.Since(start)),
		)
	case errors.Is(err, domain.ErrLockHeld):
		s.logger.InfoContext(ctx, "skipping job, another cycle holds the lock",
			slog.String("job", job.Name),
		)
	case ctx.Err() != nil:
		// shutting down
	default:
		s.logger.ErrorContext(ctx, "job failed",
			slog.String("job", job.Name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
	}
}

// safeRun converts a panicking job into an error so one bad cycle does not
// stop the bot.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}
