package scheduler

import (
	"context"
	"time"

	"screentrace/internal/storage"
)

// plan walks the recent horizon and creates the job rows that captured
// activity calls for. Creation is idempotent; re-planning an already-planned
// window is a no-op.
func (s *Scheduler) plan(ctx context.Context) error {
	now := s.now().In(s.cfg.Timezone)

	for back := 0; back <= s.cfg.PlanHorizonDays; back++ {
		day := now.AddDate(0, 0, -back)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.cfg.Timezone)
		dayEnd := dayStart.AddDate(0, 0, 1)

		if err := s.planDay(ctx, dayStart.Unix(), dayEnd.Unix(), now.Unix()); err != nil {
			return err
		}
	}

	// The embedding backfill sweeps the whole backlog; one job per hour
	// keeps it periodic without a second scheduling mechanism.
	hourStart := now.Truncate(time.Hour).Unix()
	if _, err := s.jobs.GetOrCreate(ctx, storage.JobTypeEmbedding, hourStart, hourStart+3600); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) planDay(ctx context.Context, dayStart, dayEnd, nowTS int64) error {
	hours, err := s.events.HoursWithActivity(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}

	active := 0
	for _, h := range hours {
		// Only fully elapsed hours get summarized; the open hour is still
		// accumulating evidence.
		if h+3600 > nowTS {
			continue
		}
		active++
		if _, err := s.jobs.GetOrCreate(ctx, storage.JobTypeHourly, h, h+3600); err != nil {
			return err
		}
	}

	if active == 0 || dayEnd > nowTS {
		return nil
	}

	if _, err := s.jobs.GetOrCreate(ctx, storage.JobTypeDaily, dayStart, dayEnd); err != nil {
		return err
	}

	daily, err := s.jobs.GetByKey(ctx, storage.JobTypeDaily, dayStart, dayEnd)
	if err != nil {
		return err
	}
	if daily.Status == storage.JobStatusSuccess {
		if _, err := s.jobs.GetOrCreate(ctx, storage.JobTypeCleanup, dayStart, dayEnd); err != nil {
			return err
		}
	}
	return nil
}
