package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// EventRepo provides methods for activity-span operations.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Open inserts a new unsealed event starting at startTS and returns it.
func (r *EventRepo) Open(ctx context.Context, e *Event, startTS int64) (*Event, error) {
	e.ID = uuid.New().String()
	e.StartTS = startTS
	e.EndTS = startTS
	e.Sealed = false

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, monitor_id, app_id, app_name, window_title, url, page_title, doc_path, location, now_playing, start_ts, end_ts, sealed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		e.ID, e.MonitorID, e.AppID, e.AppName, e.WindowTitle, e.URL, e.PageTitle, e.DocPath, e.Location, e.NowPlaying, e.StartTS, e.EndTS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return e, nil
}

// Extend pushes the open event's end timestamp forward and refreshes the
// best-effort metadata fields. Sealed events are never touched.
func (r *EventRepo) Extend(ctx context.Context, e *Event, endTS int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET end_ts = ?, url = ?, page_title = ?, doc_path = ?, location = ?, now_playing = ?
		 WHERE id = ? AND sealed = 0`,
		endTS, e.URL, e.PageTitle, e.DocPath, e.Location, e.NowPlaying, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to extend event: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	e.EndTS = endTS
	return nil
}

// Seal fixes the event's end timestamp; the span is immutable afterwards.
func (r *EventRepo) Seal(ctx context.Context, id string, endTS int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET end_ts = ?, sealed = 1 WHERE id = ? AND sealed = 0`,
		endTS, id,
	)
	if err != nil {
		return fmt.Errorf("failed to seal event: %w", err)
	}
	return nil
}

// ListWindow returns all events overlapping [startTS, endTS), ordered by
// start time then id so callers get a deterministic sequence.
func (r *EventRepo) ListWindow(ctx context.Context, startTS, endTS int64) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, monitor_id, app_id, app_name, window_title, url, page_title, doc_path, location, now_playing, start_ts, end_ts, sealed
		 FROM events WHERE start_ts < ? AND end_ts > ? ORDER BY start_ts, id`,
		endTS, startTS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []Event
	for rows.Next() {
		var e Event
		var sealed int
		if err := rows.Scan(&e.ID, &e.MonitorID, &e.AppID, &e.AppName, &e.WindowTitle, &e.URL, &e.PageTitle, &e.DocPath, &e.Location, &e.NowPlaying, &e.StartTS, &e.EndTS, &sealed); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Sealed = sealed != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

// HoursWithActivity returns the distinct window-start timestamps, aligned to
// hour offsets from dayStart, that contain at least one event inside
// [dayStart, dayEnd). Alignment is relative to dayStart so day boundaries in
// non-whole-hour timezones stay consistent.
func (r *EventRepo) HoursWithActivity(ctx context.Context, dayStart, dayEnd int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ((start_ts - ?) / 3600) * 3600 + ? FROM events
		 WHERE start_ts >= ? AND start_ts < ? ORDER BY 1`,
		dayStart, dayStart, dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active hours: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var hours []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hour: %w", err)
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}
