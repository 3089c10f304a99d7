package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// NoteEntityRepo provides methods for note-entity associations.
type NoteEntityRepo struct {
	db *sql.DB
}

// NewNoteEntityRepo creates a new NoteEntityRepo.
func NewNoteEntityRepo(db *sql.DB) *NoteEntityRepo {
	return &NoteEntityRepo{db: db}
}

// Upsert writes the association, overwriting strength on reprocessing. At
// most one row ever exists per (note, entity) pair.
func (r *NoteEntityRepo) Upsert(ctx context.Context, noteID, entityID string, strength float64) error {
	if strength < 0 || strength > 1 {
		return fmt.Errorf("strength %v out of range [0,1]", strength)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO note_entities (note_id, entity_id, strength) VALUES (?, ?, ?)
		 ON CONFLICT (note_id, entity_id) DO UPDATE SET strength = excluded.strength`,
		noteID, entityID, strength,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert note entity: %w", err)
	}
	return nil
}

// ListByNote returns associations for one note, strongest first.
func (r *NoteEntityRepo) ListByNote(ctx context.Context, noteID string) ([]NoteEntity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT note_id, entity_id, strength FROM note_entities
		 WHERE note_id = ? ORDER BY strength DESC, entity_id`,
		noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query note entities: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var assocs []NoteEntity
	for rows.Next() {
		var a NoteEntity
		if err := rows.Scan(&a.NoteID, &a.EntityID, &a.Strength); err != nil {
			return nil, fmt.Errorf("failed to scan note entity: %w", err)
		}
		assocs = append(assocs, a)
	}
	return assocs, rows.Err()
}

// ListByEntity returns associations for one entity.
func (r *NoteEntityRepo) ListByEntity(ctx context.Context, entityID string) ([]NoteEntity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT note_id, entity_id, strength FROM note_entities
		 WHERE entity_id = ? ORDER BY note_id`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query note entities: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var assocs []NoteEntity
	for rows.Next() {
		var a NoteEntity
		if err := rows.Scan(&a.NoteID, &a.EntityID, &a.Strength); err != nil {
			return nil, fmt.Errorf("failed to scan note entity: %w", err)
		}
		assocs = append(assocs, a)
	}
	return assocs, rows.Err()
}

// DanglingCount returns the number of association rows pointing at a missing
// note or entity; the integrity checkpoint requires zero.
func (r *NoteEntityRepo) DanglingCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM note_entities ne
		 WHERE NOT EXISTS (SELECT 1 FROM notes WHERE notes.id = ne.note_id)
		    OR NOT EXISTS (SELECT 1 FROM entities WHERE entities.id = ne.entity_id)`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count dangling associations: %w", err)
	}
	return n, nil
}
