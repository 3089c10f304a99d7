package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"screentrace/internal/scheduler/mocks"
	"screentrace/internal/storage"
)

func newTestScheduler(t *testing.T) (*Scheduler, *storage.JobRepo, *storage.EventRepo) {
	t.Helper()

	db, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	jobs := storage.NewJobRepo(db)
	events := storage.NewEventRepo(db)
	s := New(Config{MaxAttempts: 3, Timezone: time.UTC}, jobs, events)
	return s, jobs, events
}

// dispatchAndWait runs one dispatch cycle and blocks until every started job
// finished.
func dispatchAndWait(t *testing.T, s *Scheduler, ctx context.Context) {
	t.Helper()
	if err := s.dispatch(ctx); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}
	s.wg.Wait()
}

func TestScheduler_TriggerRequiresForceForSucceededWindow(t *testing.T) {
	s, jobs, _ := newTestScheduler(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	s.Register(storage.JobTypeDaily, mocks.NewMockRunner(ctrl))

	job, _ := jobs.GetOrCreate(ctx, storage.JobTypeDaily, 0, 86400)
	_, _ = jobs.TransitionRunning(ctx, job.ID)
	_ = jobs.MarkSuccess(ctx, job.ID)

	if _, err := s.Trigger(ctx, storage.JobTypeDaily, 0, 86400, false); !errors.Is(err, ErrAlreadySucceeded) {
		t.Fatalf("Trigger() error = %v, want ErrAlreadySucceeded", err)
	}

	got, err := s.Trigger(ctx, storage.JobTypeDaily, 0, 86400, true)
	if err != nil {
		t.Fatalf("forced Trigger() error = %v", err)
	}
	if got.Status != storage.JobStatusPending || got.Attempts != 0 {
		t.Errorf("forced trigger: status=%s attempts=%d, want pending, 0", got.Status, got.Attempts)
	}
}

func TestScheduler_TriggerUnknownType(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if _, err := s.Trigger(context.Background(), "vacuum", 0, 86400, false); err == nil {
		t.Error("Trigger() with unregistered job type did not error")
	}
}

func TestScheduler_TriggerRetriesFailedWindow(t *testing.T) {
	s, jobs, _ := newTestScheduler(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	s.Register(storage.JobTypeHourly, mocks.NewMockRunner(ctrl))

	job, _ := jobs.GetOrCreate(ctx, storage.JobTypeHourly, 0, 3600)
	_, _ = jobs.TransitionRunning(ctx, job.ID)
	_ = jobs.MarkFailed(ctx, job.ID, "boom")

	got, err := s.Trigger(ctx, storage.JobTypeHourly, 0, 3600, false)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if got.Status != storage.JobStatusPending || got.Attempts != 0 {
		t.Errorf("trigger on failed job: status=%s attempts=%d, want pending, 0", got.Status, got.Attempts)
	}
}

func TestScheduler_PlanCreatesJobsFromActivity(t *testing.T) {
	s, jobs, events := newTestScheduler(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// Yesterday: one active hour at 09:00. Today: one at 08:00 and one in
	// the still-open 10:00 hour.
	seed := func(ts time.Time) {
		e, err := events.Open(ctx, &storage.Event{MonitorID: 1, AppID: "a", AppName: "A"}, ts.Unix())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		_ = events.Seal(ctx, e.ID, ts.Add(10*time.Minute).Unix())
	}
	yesterday := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	seed(yesterday)
	seed(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	seed(time.Date(2026, 3, 14, 10, 5, 0, 0, time.UTC))

	if err := s.plan(ctx); err != nil {
		t.Fatalf("plan() error = %v", err)
	}

	if _, err := jobs.GetByKey(ctx, storage.JobTypeHourly, yesterday.Unix(), yesterday.Unix()+3600); err != nil {
		t.Errorf("no hourly job for yesterday's active hour: %v", err)
	}
	if _, err := jobs.GetByKey(ctx, storage.JobTypeHourly,
		time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC).Unix(),
		time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC).Unix()); err != nil {
		t.Errorf("no hourly job for today's elapsed hour: %v", err)
	}
	// The open hour is still accumulating evidence.
	openHour := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC).Unix()
	if _, err := jobs.GetByKey(ctx, storage.JobTypeHourly, openHour, openHour+3600); err != storage.ErrNotFound {
		t.Errorf("the open hour was planned: err = %v", err)
	}

	dayStart := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC).Unix()
	dayEnd := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC).Unix()
	daily, err := jobs.GetByKey(ctx, storage.JobTypeDaily, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("no daily job for the finished day: %v", err)
	}
	// Cleanup is planned only once the daily job succeeded.
	if _, err := jobs.GetByKey(ctx, storage.JobTypeCleanup, dayStart, dayEnd); err != storage.ErrNotFound {
		t.Errorf("cleanup planned before daily success: err = %v", err)
	}
	// The unfinished current day gets no daily job.
	todayStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC).Unix()
	if _, err := jobs.GetByKey(ctx, storage.JobTypeDaily, todayStart, todayStart+86400); err != storage.ErrNotFound {
		t.Errorf("daily job planned for the unfinished day: err = %v", err)
	}

	_, _ = jobs.TransitionRunning(ctx, daily.ID)
	_ = jobs.MarkSuccess(ctx, daily.ID)
	if err := s.plan(ctx); err != nil {
		t.Fatalf("second plan() error = %v", err)
	}
	if _, err := jobs.GetByKey(ctx, storage.JobTypeCleanup, dayStart, dayEnd); err != nil {
		t.Errorf("no cleanup job after daily success: %v", err)
	}
}

func TestScheduler_DailyWaitsForHourlies(t *testing.T) {
	s, jobs, _ := newTestScheduler(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	hourly := mocks.NewMockRunner(ctrl)
	daily := mocks.NewMockRunner(ctrl)
	s.Register(storage.JobTypeHourly, hourly)
	s.Register(storage.JobTypeDaily, daily)

	hourlyJob, _ := jobs.GetOrCreate(ctx, storage.JobTypeHourly, 0, 3600)
	dailyJob, _ := jobs.GetOrCreate(ctx, storage.JobTypeDaily, 0, 86400)

	// First cycle: the hourly job runs, the daily job is gated behind it.
	hourly.EXPECT().Run(gomock.Any(), int64(0), int64(3600)).Return(nil)
	dispatchAndWait(t, s, ctx)

	got, _ := jobs.GetByID(ctx, hourlyJob.ID)
	if got.Status != storage.JobStatusSuccess {
		t.Fatalf("hourly job status = %s, want success", got.Status)
	}
	got, _ = jobs.GetByID(ctx, dailyJob.ID)
	if got.Status != storage.JobStatusPending {
		t.Fatalf("daily job ran before its hourlies finished: status = %s", got.Status)
	}

	// Second cycle: the gate is open.
	daily.EXPECT().Run(gomock.Any(), int64(0), int64(86400)).Return(nil)
	dispatchAndWait(t, s, ctx)

	got, _ = jobs.GetByID(ctx, dailyJob.ID)
	if got.Status != storage.JobStatusSuccess {
		t.Errorf("daily job status = %s, want success", got.Status)
	}
}

func TestScheduler_DailyWaitsForRetryableHourlyFailure(t *testing.T) {
	s, jobs, _ := newTestScheduler(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	hourly := mocks.NewMockRunner(ctrl)
	daily := mocks.NewMockRunner(ctrl)
	s.Register(storage.JobTypeHourly, hourly)
	s.Register(storage.JobTypeDaily, daily)

	hourlyJob, _ := jobs.GetOrCreate(ctx, storage.JobTypeHourly, 0, 3600)
	dailyJob, _ := jobs.GetOrCreate(ctx, storage.JobTypeDaily, 0, 86400)

	hourly.EXPECT().Run(gomock.Any(), int64(0), int64(3600)).Return(errors.New("model down"))
	dispatchAndWait(t, s, ctx)

	failed, _ := jobs.GetByID(ctx, hourlyJob.ID)
	if failed.Status != storage.JobStatusFailed {
		t.Fatalf("hourly job status = %s, want failed", failed.Status)
	}

	// The failure has attempts left, so the hour is not done: the same
	// cycle that retries it must not also start the daily job.
	hourly.EXPECT().Run(gomock.Any(), int64(0), int64(3600)).Return(nil)
	s.now = func() time.Time { return time.Unix(failed.UpdatedTS+60, 0) }
	dispatchAndWait(t, s, ctx)

	got, _ := jobs.GetByID(ctx, dailyJob.ID)
	if got.Status != storage.JobStatusPending {
		t.Fatalf("daily job started alongside a retrying hourly: status = %s", got.Status)
	}

	// Once the hour succeeded the gate opens.
	daily.EXPECT().Run(gomock.Any(), int64(0), int64(86400)).Return(nil)
	dispatchAndWait(t, s, ctx)
	got, _ = jobs.GetByID(ctx, dailyJob.ID)
	if got.Status != storage.JobStatusSuccess {
		t.Errorf("daily job status = %s, want success", got.Status)
	}
}

func TestScheduler_CleanupWaitsForDailySuccess(t *testing.T) {
	s, jobs, _ := newTestScheduler(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	cleanup := mocks.NewMockRunner(ctrl)
	s.Register(storage.JobTypeCleanup, cleanup)

	cleanupJob, _ := jobs.GetOrCreate(ctx, storage.JobTypeCleanup, 0, 86400)

	// No daily job at all: cleanup must not run.
	dispatchAndWait(t, s, ctx)
	got, _ := jobs.GetByID(ctx, cleanupJob.ID)
	if got.Status != storage.JobStatusPending {
		t.Fatalf("cleanup ran without a daily job: status = %s", got.Status)
	}

	dailyJob, _ := jobs.GetOrCreate(ctx, storage.JobTypeDaily, 0, 86400)
	_, _ = jobs.TransitionRunning(ctx, dailyJob.ID)
	_ = jobs.MarkSuccess(ctx, dailyJob.ID)

	cleanup.EXPECT().Run(gomock.Any(), int64(0), int64(86400)).Return(nil)
	dispatchAndWait(t, s, ctx)
	got, _ = jobs.GetByID(ctx, cleanupJob.ID)
	if got.Status != storage.JobStatusSuccess {
		t.Errorf("cleanup status = %s, want success", got.Status)
	}
}

func TestScheduler_AbortedRunRevertsToPending(t *testing.T) {
	s, jobs, _ := newTestScheduler(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	runner := mocks.NewMockRunner(ctrl)
	s.Register(storage.JobTypeHourly, runner)
	job, _ := jobs.GetOrCreate(ctx, storage.JobTypeHourly, 0, 3600)

	runner.EXPECT().Run(gomock.Any(), int64(0), int64(3600)).Return(context.Canceled)
	dispatchAndWait(t, s, ctx)

	got, _ := jobs.GetByID(ctx, job.ID)
	if got.Status != storage.JobStatusPending {
		t.Errorf("aborted job status = %s, want pending", got.Status)
	}
	if got.LastError != "" {
		t.Errorf("aborted job carries an error: %q", got.LastError)
	}
	// Immediately runnable again; the abort is not a failure.
	runnable, _ := jobs.ListRunnable(ctx, s.cfg.MaxAttempts)
	if len(runnable) != 1 || runnable[0].ID != job.ID {
		t.Errorf("aborted job is not runnable: %+v", runnable)
	}
}

func TestScheduler_FailedJobWaitsForBackoff(t *testing.T) {
	s, jobs, _ := newTestScheduler(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	runner := mocks.NewMockRunner(ctrl)
	s.Register(storage.JobTypeHourly, runner)
	job, _ := jobs.GetOrCreate(ctx, storage.JobTypeHourly, 0, 3600)

	runner.EXPECT().Run(gomock.Any(), int64(0), int64(3600)).Return(errors.New("model down"))
	dispatchAndWait(t, s, ctx)

	got, _ := jobs.GetByID(ctx, job.ID)
	if got.Status != storage.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", got.Status)
	}

	// Inside the backoff window nothing is dispatched.
	s.now = func() time.Time { return time.Unix(got.UpdatedTS+5, 0) }
	dispatchAndWait(t, s, ctx)

	// Past the window the retry runs.
	runner.EXPECT().Run(gomock.Any(), int64(0), int64(3600)).Return(nil)
	s.now = func() time.Time { return time.Unix(got.UpdatedTS+60, 0) }
	dispatchAndWait(t, s, ctx)

	got, _ = jobs.GetByID(ctx, job.ID)
	if got.Status != storage.JobStatusSuccess {
		t.Errorf("job status after retry = %s, want success", got.Status)
	}
}

func TestRetryDelay(t *testing.T) {
	if d := retryDelay(1); d != 30 {
		t.Errorf("retryDelay(1) = %d, want 30", d)
	}
	// The schedule grows and stays capped.
	prev := int64(0)
	for attempts := 1; attempts <= 20; attempts++ {
		d := retryDelay(attempts)
		if d < prev {
			t.Errorf("retryDelay(%d) = %d, shrank from %d", attempts, d, prev)
		}
		if d > 1800 {
			t.Errorf("retryDelay(%d) = %d, exceeds the 30 minute cap", attempts, d)
		}
		prev = d
	}
	// Deterministic: no randomization.
	if retryDelay(3) != retryDelay(3) {
		t.Error("retryDelay is not deterministic")
	}
}
