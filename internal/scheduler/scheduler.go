package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"screentrace/internal/contextutil"
	"screentrace/internal/storage"
)

// ErrAlreadySucceeded is returned by Trigger when the window already has a
// successful job and force was not set.
var ErrAlreadySucceeded = errors.New("job already succeeded, reprocessing requires force")

// Runner executes one job type over a half-open window.
//
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_runner.go -package=mocks screentrace/internal/scheduler Runner
type Runner interface {
	Run(ctx context.Context, startTS, endTS int64) error
}

// Config holds the scheduler's fixed parameters.
type Config struct {
	PollInterval    time.Duration
	MaxAttempts     int
	PlanHorizonDays int
	Timezone        *time.Location
}

// Scheduler plans jobs from captured activity and dispatches them to
// registered runners. Idempotency lives in the jobs table: one row per
// (job_type, window_start, window_end), with the running transition enforced
// at the database so two dispatchers cannot run the same key.
type Scheduler struct {
	cfg     Config
	jobs    *storage.JobRepo
	events  *storage.EventRepo
	runners map[string]Runner

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// New creates a scheduler. Runners are registered separately so wiring order
// in main stays flexible.
func New(cfg Config, jobs *storage.JobRepo, events *storage.EventRepo) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PlanHorizonDays <= 0 {
		cfg.PlanHorizonDays = 3
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &Scheduler{
		cfg:      cfg,
		jobs:     jobs,
		events:   events,
		runners:  make(map[string]Runner),
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Register binds a runner to a job type. Must be called before Run.
func (s *Scheduler) Register(jobType string, r Runner) {
	s.runners[jobType] = r
}

// Run recovers interrupted jobs, then plans and dispatches until the context
// is cancelled. In-flight jobs are reverted to pending on the way out.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	recovered, err := s.jobs.RecoverInterrupted(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		logger.Info("recovered interrupted jobs", "count", recovered)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one plan-and-dispatch cycle. Exported for tests.
func (s *Scheduler) Tick(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)
	if err := s.plan(ctx); err != nil {
		logger.Warn("job planning failed", "error", err)
	}
	if err := s.dispatch(ctx); err != nil {
		logger.Warn("job dispatch failed", "error", err)
	}
}

// Trigger creates or reruns a job for a window on demand. A succeeded window
// is only rerun with force, which resets the row to pending.
func (s *Scheduler) Trigger(ctx context.Context, jobType string, startTS, endTS int64, force bool) (*storage.Job, error) {
	if _, ok := s.runners[jobType]; !ok {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
	job, err := s.jobs.GetOrCreate(ctx, jobType, startTS, endTS)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case storage.JobStatusSuccess:
		if !force {
			return nil, ErrAlreadySucceeded
		}
		if err := s.jobs.Reset(ctx, job.ID); err != nil {
			return nil, err
		}
	case storage.JobStatusFailed:
		if err := s.jobs.Reset(ctx, job.ID); err != nil {
			return nil, err
		}
	}
	return s.jobs.GetByKey(ctx, jobType, startTS, endTS)
}

func (s *Scheduler) dispatch(ctx context.Context) error {
	runnable, err := s.jobs.ListRunnable(ctx, s.cfg.MaxAttempts)
	if err != nil {
		return err
	}

	now := s.now().Unix()
	for i := range runnable {
		job := runnable[i]
		runner, ok := s.runners[job.JobType]
		if !ok {
			continue
		}
		if job.Status == storage.JobStatusFailed && now < job.UpdatedTS+retryDelay(job.Attempts) {
			continue
		}
		eligible, err := s.gated(ctx, &job)
		if err != nil {
			return err
		}
		if !eligible {
			continue
		}

		s.mu.Lock()
		if _, busy := s.inFlight[job.ID]; busy {
			s.mu.Unlock()
			continue
		}
		s.inFlight[job.ID] = struct{}{}
		s.mu.Unlock()

		started, err := s.jobs.TransitionRunning(ctx, job.ID)
		if err != nil || !started {
			s.release(job.ID)
			if err != nil {
				return err
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(job.ID)
			s.execute(ctx, runner, &job)
		}()
	}
	return nil
}

// gated applies the ordering rules between job types: a day's daily job
// waits for every hourly job of the day to reach a terminal state (success,
// or failed with no attempts left — a retryable failure still counts as
// unfinished), and cleanup waits for the daily job to succeed.
func (s *Scheduler) gated(ctx context.Context, job *storage.Job) (bool, error) {
	switch job.JobType {
	case storage.JobTypeDaily:
		pending, err := s.jobs.CountNonTerminal(ctx, storage.JobTypeHourly, job.WindowStartTS, job.WindowEndTS, s.cfg.MaxAttempts)
		if err != nil {
			return false, err
		}
		return pending == 0, nil
	case storage.JobTypeCleanup:
		daily, err := s.jobs.GetByKey(ctx, storage.JobTypeDaily, job.WindowStartTS, job.WindowEndTS)
		if err == storage.ErrNotFound {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return daily.Status == storage.JobStatusSuccess, nil
	default:
		return true, nil
	}
}

func (s *Scheduler) execute(ctx context.Context, runner Runner, job *storage.Job) {
	logger := contextutil.LoggerFromContext(ctx).With(
		"job_id", job.ID, "job_type", job.JobType,
		"window_start", job.WindowStartTS, "attempt", job.Attempts)
	runCtx := contextutil.WithLogger(ctx, logger)

	err := runner.Run(runCtx, job.WindowStartTS, job.WindowEndTS)
	switch {
	case err == nil:
		if err := s.jobs.MarkSuccess(context.WithoutCancel(ctx), job.ID); err != nil {
			logger.Error("failed to mark job success", "error", err)
			return
		}
		logger.Info("job succeeded")
	case errors.Is(err, context.Canceled):
		// Shutdown aborted the run; the attempt does not count.
		if err := s.jobs.RevertToPending(context.WithoutCancel(ctx), job.ID); err != nil {
			logger.Error("failed to revert aborted job", "error", err)
		}
	default:
		if markErr := s.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); markErr != nil {
			logger.Error("failed to mark job failed", "error", markErr)
			return
		}
		logger.Warn("job failed", "error", err)
	}
}

func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	delete(s.inFlight, jobID)
	s.mu.Unlock()
}

// retryDelay is the exponential backoff, in seconds, applied before a failed
// job's next attempt. Randomization is off so tests and re-runs see the same
// schedule.
func retryDelay(attempts int) int64 {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.MaxInterval = 30 * time.Minute
	b.RandomizationFactor = 0
	// The default MaxElapsedTime would turn the schedule into Stop once the
	// accumulated intervals pass 15 minutes; the cap is MaxInterval alone.
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return int64(d / time.Second)
}
