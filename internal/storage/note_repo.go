package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks screentrace/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoteStore defines the interface for durable note operations.
type NoteStore interface {
	// UpsertByWindow inserts a note for (type, start, end) or overwrites the
	// payload/file of the existing one, preserving its id.
	UpsertByWindow(ctx context.Context, note *NoteRecord) error
	// GetByID gets a note by id. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*NoteRecord, error)
	// GetByWindow gets a note by (type, start, end). Returns ErrNotFound if missing.
	GetByWindow(ctx context.Context, noteType string, startTS, endTS int64) (*NoteRecord, error)
	// ListRange returns notes of the given type whose window starts inside
	// [startTS, endTS), ordered by start time.
	ListRange(ctx context.Context, noteType string, startTS, endTS int64) ([]NoteRecord, error)
	// SetEmbeddingID records the vector-store point id for a note.
	SetEmbeddingID(ctx context.Context, noteID, embeddingID string) error
	// ListMissingEmbedding returns notes without an embedding, oldest first.
	ListMissingEmbedding(ctx context.Context, limit int) ([]NoteRecord, error)
}

// NoteRepo provides methods for note operations. It implements NoteStore.
type NoteRepo struct {
	db *sql.DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// UpsertByWindow inserts a note or overwrites the existing one for the same
// (type, start_ts, end_ts) window. Re-running a succeeded window is a
// deterministic overwrite, never a duplicate.
func (r *NoteRepo) UpsertByWindow(ctx context.Context, note *NoteRecord) error {
	existing, err := r.GetByWindow(ctx, note.Type, note.StartTS, note.EndTS)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to check existing note: %w", err)
	}

	now := time.Now().Unix()
	if existing != nil {
		note.ID = existing.ID
		note.CreatedTS = existing.CreatedTS
	} else {
		if note.ID == "" {
			note.ID = uuid.New().String()
		}
		note.CreatedTS = now
	}
	note.UpdatedTS = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO notes (id, type, start_ts, end_ts, file_path, json_payload, embedding_id, created_ts, updated_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (type, start_ts, end_ts) DO UPDATE SET
		 file_path = excluded.file_path, json_payload = excluded.json_payload, updated_ts = excluded.updated_ts`,
		note.ID, note.Type, note.StartTS, note.EndTS, note.FilePath, note.JSONPayload, note.EmbeddingID, note.CreatedTS, note.UpdatedTS,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

// GetByID gets a note by id. Returns ErrNotFound if missing.
func (r *NoteRepo) GetByID(ctx context.Context, id string) (*NoteRecord, error) {
	return r.get(ctx, `SELECT id, type, start_ts, end_ts, file_path, json_payload, embedding_id, created_ts, updated_ts
		 FROM notes WHERE id = ?`, id)
}

// GetByWindow gets a note by (type, start, end). Returns ErrNotFound if missing.
func (r *NoteRepo) GetByWindow(ctx context.Context, noteType string, startTS, endTS int64) (*NoteRecord, error) {
	return r.get(ctx, `SELECT id, type, start_ts, end_ts, file_path, json_payload, embedding_id, created_ts, updated_ts
		 FROM notes WHERE type = ? AND start_ts = ? AND end_ts = ?`, noteType, startTS, endTS)
}

// ListRange returns notes of the given type whose window starts inside
// [startTS, endTS), ordered by start time.
func (r *NoteRepo) ListRange(ctx context.Context, noteType string, startTS, endTS int64) ([]NoteRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, start_ts, end_ts, file_path, json_payload, embedding_id, created_ts, updated_ts
		 FROM notes WHERE type = ? AND start_ts >= ? AND start_ts < ? ORDER BY start_ts`,
		noteType, startTS, endTS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	return scanNotes(rows)
}

// SetEmbeddingID records the vector-store point id for a note.
func (r *NoteRepo) SetEmbeddingID(ctx context.Context, noteID, embeddingID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notes SET embedding_id = ?, updated_ts = ? WHERE id = ?`,
		embeddingID, time.Now().Unix(), noteID,
	)
	if err != nil {
		return fmt.Errorf("failed to set embedding id: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMissingEmbedding returns notes without an embedding, oldest first.
func (r *NoteRepo) ListMissingEmbedding(ctx context.Context, limit int) ([]NoteRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, start_ts, end_ts, file_path, json_payload, embedding_id, created_ts, updated_ts
		 FROM notes WHERE embedding_id = '' ORDER BY start_ts LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	return scanNotes(rows)
}

func (r *NoteRepo) get(ctx context.Context, query string, args ...any) (*NoteRecord, error) {
	var n NoteRecord
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&n.ID, &n.Type, &n.StartTS, &n.EndTS, &n.FilePath, &n.JSONPayload, &n.EmbeddingID, &n.CreatedTS, &n.UpdatedTS,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}
	return &n, nil
}

func scanNotes(rows *sql.Rows) ([]NoteRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	var notes []NoteRecord
	for rows.Next() {
		var n NoteRecord
		if err := rows.Scan(&n.ID, &n.Type, &n.StartTS, &n.EndTS, &n.FilePath, &n.JSONPayload, &n.EmbeddingID, &n.CreatedTS, &n.UpdatedTS); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
