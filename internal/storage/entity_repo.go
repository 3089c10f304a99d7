package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityRepo provides methods for canonical-concept operations.
type EntityRepo struct {
	db *sql.DB
}

// NewEntityRepo creates a new EntityRepo.
func NewEntityRepo(db *sql.DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// GetOrCreate finds an unmerged entity by (type, canonical name) or creates
// one. Lookups through a merged entity resolve to its survivor.
func (r *EntityRepo) GetOrCreate(ctx context.Context, entityType, canonicalName string) (*Entity, error) {
	e, err := r.getByName(ctx, entityType, canonicalName)
	if err == nil {
		return r.resolve(ctx, e)
	}
	if err != ErrNotFound {
		return nil, err
	}

	e = &Entity{
		ID:            uuid.New().String(),
		EntityType:    entityType,
		CanonicalName: canonicalName,
		Aliases:       []string{},
		CreatedTS:     time.Now().Unix(),
	}
	aliases, _ := json.Marshal(e.Aliases)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO entities (id, entity_type, canonical_name, aliases, created_ts, merged_into)
		 VALUES (?, ?, ?, ?, ?, '')`,
		e.ID, e.EntityType, e.CanonicalName, string(aliases), e.CreatedTS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entity: %w", err)
	}
	return e, nil
}

// GetByID gets an entity by id. Returns ErrNotFound if missing.
func (r *EntityRepo) GetByID(ctx context.Context, id string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entity_type, canonical_name, aliases, created_ts, merged_into FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// ListActive returns all entities that have not been merged away, in
// creation order. created_ts has second granularity, so same-second ties
// fall back to rowid, which is insertion order here: entity rows are never
// physically deleted, only marked merged.
func (r *EntityRepo) ListActive(ctx context.Context) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_type, canonical_name, aliases, created_ts, merged_into
		 FROM entities WHERE merged_into = '' ORDER BY created_ts, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// Merge absorbs the entity absorbedID into survivorID in one transaction:
// the absorbed name joins the survivor's aliases, note associations are
// repointed (keeping the larger strength on collision), edges are rewritten,
// and the absorbed row is marked merged. Nothing is physically deleted.
func (r *EntityRepo) Merge(ctx context.Context, survivorID, absorbedID string) error {
	if survivorID == absorbedID {
		return fmt.Errorf("cannot merge entity into itself")
	}

	survivor, err := r.GetByID(ctx, survivorID)
	if err != nil {
		return fmt.Errorf("failed to load survivor: %w", err)
	}
	absorbed, err := r.GetByID(ctx, absorbedID)
	if err != nil {
		return fmt.Errorf("failed to load absorbed entity: %w", err)
	}

	aliasSet := map[string]struct{}{}
	merged := make([]string, 0, len(survivor.Aliases)+len(absorbed.Aliases)+1)
	for _, a := range append(append([]string{}, survivor.Aliases...), absorbed.Aliases...) {
		if _, ok := aliasSet[a]; !ok {
			aliasSet[a] = struct{}{}
			merged = append(merged, a)
		}
	}
	if _, ok := aliasSet[absorbed.CanonicalName]; !ok && absorbed.CanonicalName != survivor.CanonicalName {
		merged = append(merged, absorbed.CanonicalName)
	}
	aliasesJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal aliases: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Repoint note associations. Where both entities are attached to the
	// same note, keep the stronger association.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO note_entities (note_id, entity_id, strength)
		 SELECT note_id, ?, strength FROM note_entities WHERE entity_id = ?
		 ON CONFLICT (note_id, entity_id) DO UPDATE SET
		 strength = MAX(strength, excluded.strength)`,
		survivorID, absorbedID,
	); err != nil {
		return fmt.Errorf("failed to repoint note associations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM note_entities WHERE entity_id = ?`, absorbedID,
	); err != nil {
		return fmt.Errorf("failed to remove absorbed associations: %w", err)
	}

	// Rewrite edge endpoints. Where the survivor already holds the same
	// (from, to, type) edge the absorbed row is dropped; the daily job
	// re-derives weights after merging anyway.
	for _, col := range []string{"from_id", "to_id"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE OR IGNORE edges SET %s = ? WHERE %s = ?`, col, col),
			survivorID, absorbedID,
		); err != nil {
			return fmt.Errorf("failed to rewrite edge %s: %w", col, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM edges WHERE %s = ?`, col), absorbedID,
		); err != nil {
			return fmt.Errorf("failed to drop collided edges: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET aliases = ? WHERE id = ?`, string(aliasesJSON), survivorID,
	); err != nil {
		return fmt.Errorf("failed to update survivor aliases: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET merged_into = ? WHERE id = ?`, survivorID, absorbedID,
	); err != nil {
		return fmt.Errorf("failed to mark entity merged: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}

// resolve follows merged_into pointers to the surviving entity.
func (r *EntityRepo) resolve(ctx context.Context, e *Entity) (*Entity, error) {
	for e.MergedInto != "" {
		next, err := r.GetByID(ctx, e.MergedInto)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve merged entity: %w", err)
		}
		e = next
	}
	return e, nil
}

func (r *EntityRepo) getByName(ctx context.Context, entityType, canonicalName string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entity_type, canonical_name, aliases, created_ts, merged_into
		 FROM entities WHERE entity_type = ? AND canonical_name = ? AND merged_into = ''
		 ORDER BY created_ts, rowid LIMIT 1`,
		entityType, canonicalName)
	return scanEntity(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var aliases string
	err := row.Scan(&e.ID, &e.EntityType, &e.CanonicalName, &aliases, &e.CreatedTS, &e.MergedInto)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	if err := json.Unmarshal([]byte(aliases), &e.Aliases); err != nil {
		return nil, fmt.Errorf("failed to decode aliases: %w", err)
	}
	return &e, nil
}

func scanEntityRows(rows *sql.Rows) (*Entity, error) {
	return scanEntity(rows)
}
