package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// BufferRepo provides methods for transient extracted-text buffers.
type BufferRepo struct {
	db *sql.DB
}

// NewBufferRepo creates a new BufferRepo.
func NewBufferRepo(db *sql.DB) *BufferRepo {
	return &BufferRepo{db: db}
}

// Insert persists one text-buffer row.
func (r *BufferRepo) Insert(ctx context.Context, b *TextBuffer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO text_buffers (id, source_type, source_ref, day, path, token_count, captured_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SourceType, b.SourceRef, b.Day, b.Path, b.TokenCount, b.CapturedTS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert text buffer: %w", err)
	}
	return nil
}

// ListWindow returns buffers captured inside [startTS, endTS), ordered by
// capture time then id.
func (r *BufferRepo) ListWindow(ctx context.Context, startTS, endTS int64) ([]TextBuffer, error) {
	return r.list(ctx,
		`SELECT id, source_type, source_ref, day, path, token_count, captured_ts
		 FROM text_buffers WHERE captured_ts >= ? AND captured_ts < ? ORDER BY captured_ts, id`,
		startTS, endTS)
}

// ListDay returns all buffers for one YYYYMMDD day.
func (r *BufferRepo) ListDay(ctx context.Context, day string) ([]TextBuffer, error) {
	return r.list(ctx,
		`SELECT id, source_type, source_ref, day, path, token_count, captured_ts
		 FROM text_buffers WHERE day = ? ORDER BY captured_ts, id`,
		day)
}

// TokensInWindow sums token counts of buffers captured inside
// [startTS, endTS); the evidence builder uses it to enforce the hourly
// token budget.
func (r *BufferRepo) TokensInWindow(ctx context.Context, startTS, endTS int64) (int, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(token_count) FROM text_buffers WHERE captured_ts >= ? AND captured_ts < ?`,
		startTS, endTS,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to sum buffer tokens: %w", err)
	}
	return int(n.Int64), nil
}

// DeleteDay removes all buffer rows for one day inside the given
// transaction and returns the number of rows removed.
func (r *BufferRepo) DeleteDay(ctx context.Context, tx *sql.Tx, day string) (int, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM text_buffers WHERE day = ?`, day)
	if err != nil {
		return 0, fmt.Errorf("failed to delete text buffers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *BufferRepo) list(ctx context.Context, query string, args ...any) ([]TextBuffer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query text buffers: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var buffers []TextBuffer
	for rows.Next() {
		var b TextBuffer
		if err := rows.Scan(&b.ID, &b.SourceType, &b.SourceRef, &b.Day, &b.Path, &b.TokenCount, &b.CapturedTS); err != nil {
			return nil, fmt.Errorf("failed to scan text buffer: %w", err)
		}
		buffers = append(buffers, b)
	}
	return buffers, rows.Err()
}
