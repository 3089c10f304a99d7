package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ScreenshotRepo provides methods for persisted-frame operations.
// Screenshot rows are written only by the capture loop and deleted only by
// the post-checkpoint cleanup.
type ScreenshotRepo struct {
	db *sql.DB
}

// NewScreenshotRepo creates a new ScreenshotRepo.
func NewScreenshotRepo(db *sql.DB) *ScreenshotRepo {
	return &ScreenshotRepo{db: db}
}

// Insert persists one frame row.
func (r *ScreenshotRepo) Insert(ctx context.Context, s *Screenshot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO screenshots (id, monitor_id, captured_ts, day, path, fingerprint, diff_score, is_anchor)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.MonitorID, s.CapturedTS, s.Day, s.Path, int64(s.Fingerprint), s.DiffScore, boolToInt(s.IsAnchor),
	)
	if err != nil {
		return fmt.Errorf("failed to insert screenshot: %w", err)
	}
	return nil
}

// ListWindow returns screenshots captured inside [startTS, endTS), ordered
// by capture time then id.
func (r *ScreenshotRepo) ListWindow(ctx context.Context, startTS, endTS int64) ([]Screenshot, error) {
	return r.list(ctx,
		`SELECT id, monitor_id, captured_ts, day, path, fingerprint, diff_score, is_anchor
		 FROM screenshots WHERE captured_ts >= ? AND captured_ts < ? ORDER BY captured_ts, id`,
		startTS, endTS)
}

// ListDay returns all screenshots for one YYYYMMDD day.
func (r *ScreenshotRepo) ListDay(ctx context.Context, day string) ([]Screenshot, error) {
	return r.list(ctx,
		`SELECT id, monitor_id, captured_ts, day, path, fingerprint, diff_score, is_anchor
		 FROM screenshots WHERE day = ? ORDER BY captured_ts, id`,
		day)
}

// CountDay returns the number of screenshot rows for one day.
func (r *ScreenshotRepo) CountDay(ctx context.Context, day string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM screenshots WHERE day = ?`, day).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count screenshots: %w", err)
	}
	return n, nil
}

// DeleteDay removes all screenshot rows for one day inside the given
// transaction and returns the number of rows removed.
func (r *ScreenshotRepo) DeleteDay(ctx context.Context, tx *sql.Tx, day string) (int, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM screenshots WHERE day = ?`, day)
	if err != nil {
		return 0, fmt.Errorf("failed to delete screenshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *ScreenshotRepo) list(ctx context.Context, query string, args ...any) ([]Screenshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query screenshots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var shots []Screenshot
	for rows.Next() {
		var s Screenshot
		var fp int64
		var anchor int
		if err := rows.Scan(&s.ID, &s.MonitorID, &s.CapturedTS, &s.Day, &s.Path, &fp, &s.DiffScore, &anchor); err != nil {
			return nil, fmt.Errorf("failed to scan screenshot: %w", err)
		}
		s.Fingerprint = uint64(fp)
		s.IsAnchor = anchor != 0
		shots = append(shots, s)
	}
	return shots, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
