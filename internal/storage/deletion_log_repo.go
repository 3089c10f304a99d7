package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeletionLogRepo provides methods for the post-checkpoint deletion audit log.
type DeletionLogRepo struct {
	db *sql.DB
}

// NewDeletionLogRepo creates a new DeletionLogRepo.
func NewDeletionLogRepo(db *sql.DB) *DeletionLogRepo {
	return &DeletionLogRepo{db: db}
}

// InsertTx writes the audit row inside the deletion transaction. This row is
// the DB-confirms-done marker: it commits together with the row deletions,
// so a crash mid-delete re-runs as a failed checkpoint instead of passing
// for a completed purge.
func (r *DeletionLogRepo) InsertTx(ctx context.Context, tx *sql.Tx, rec *DeletionRecord) error {
	rec.DeletedTS = time.Now().Unix()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO deletion_log (day, screenshots, text_buffers, ocr_intermediates, deleted_ts)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Day, rec.Screenshots, rec.TextBuffers, rec.OCRIntermediates, rec.DeletedTS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deletion record: %w", err)
	}
	return nil
}

// Get returns the deletion record for one day. Returns ErrNotFound if the
// day has not been purged.
func (r *DeletionLogRepo) Get(ctx context.Context, day string) (*DeletionRecord, error) {
	var rec DeletionRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT day, screenshots, text_buffers, ocr_intermediates, deleted_ts FROM deletion_log WHERE day = ?`,
		day,
	).Scan(&rec.Day, &rec.Screenshots, &rec.TextBuffers, &rec.OCRIntermediates, &rec.DeletedTS)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deletion record: %w", err)
	}
	return &rec, nil
}

// List returns all deletion records, newest first.
func (r *DeletionLogRepo) List(ctx context.Context) ([]DeletionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT day, screenshots, text_buffers, ocr_intermediates, deleted_ts
		 FROM deletion_log ORDER BY day DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletion log: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var recs []DeletionRecord
	for rows.Next() {
		var rec DeletionRecord
		if err := rows.Scan(&rec.Day, &rec.Screenshots, &rec.TextBuffers, &rec.OCRIntermediates, &rec.DeletedTS); err != nil {
			return nil, fmt.Errorf("failed to scan deletion record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Begin starts a transaction for the cleanup's all-or-nothing DB step.
func (r *DeletionLogRepo) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin deletion transaction: %w", err)
	}
	return tx, nil
}
