package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SnapshotRepo provides methods for now-playing and location snapshots,
// which arrive on their own polling cadence independent of frames.
type SnapshotRepo struct {
	db *sql.DB
}

// NewSnapshotRepo creates a new SnapshotRepo.
func NewSnapshotRepo(db *sql.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// InsertNowPlaying records one media snapshot.
func (r *SnapshotRepo) InsertNowPlaying(ctx context.Context, s *NowPlayingSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO now_playing (id, ts, title, artist, app) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.TS, s.Title, s.Artist, s.App,
	)
	if err != nil {
		return fmt.Errorf("failed to insert now-playing snapshot: %w", err)
	}
	return nil
}

// InsertLocation records one location snapshot.
func (r *SnapshotRepo) InsertLocation(ctx context.Context, s *LocationSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO locations (id, ts, text) VALUES (?, ?, ?)`,
		s.ID, s.TS, s.Text,
	)
	if err != nil {
		return fmt.Errorf("failed to insert location snapshot: %w", err)
	}
	return nil
}

// NowPlayingWindow returns media snapshots inside [startTS, endTS) in time order.
func (r *SnapshotRepo) NowPlayingWindow(ctx context.Context, startTS, endTS int64) ([]NowPlayingSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ts, title, artist, app FROM now_playing
		 WHERE ts >= ? AND ts < ? ORDER BY ts, id`,
		startTS, endTS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query now-playing snapshots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var snaps []NowPlayingSnapshot
	for rows.Next() {
		var s NowPlayingSnapshot
		if err := rows.Scan(&s.ID, &s.TS, &s.Title, &s.Artist, &s.App); err != nil {
			return nil, fmt.Errorf("failed to scan now-playing snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// LocationWindow returns location snapshots inside [startTS, endTS) in time order.
func (r *SnapshotRepo) LocationWindow(ctx context.Context, startTS, endTS int64) ([]LocationSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ts, text FROM locations WHERE ts >= ? AND ts < ? ORDER BY ts, id`,
		startTS, endTS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query location snapshots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var snaps []LocationSnapshot
	for rows.Next() {
		var s LocationSnapshot
		if err := rows.Scan(&s.ID, &s.TS, &s.Text); err != nil {
			return nil, fmt.Errorf("failed to scan location snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
