package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EdgeRepo provides methods for typed-relationship operations. The daily
// revision job is the only writer.
type EdgeRepo struct {
	db *sql.DB
}

// NewEdgeRepo creates a new EdgeRepo.
func NewEdgeRepo(db *sql.DB) *EdgeRepo {
	return &EdgeRepo{db: db}
}

// Upsert writes the edge; re-deriving an existing (from, to, type) updates
// weight, time range and evidence rather than duplicating.
func (r *EdgeRepo) Upsert(ctx context.Context, e *Edge) error {
	if e.Weight < 0 {
		return fmt.Errorf("edge weight %v must be >= 0", e.Weight)
	}
	evidence := e.EvidenceNoteIDs
	if evidence == nil {
		evidence = []string{}
	}
	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO edges (from_id, to_id, edge_type, weight, start_ts, end_ts, evidence_note_ids, updated_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (from_id, to_id, edge_type) DO UPDATE SET
		 weight = excluded.weight, start_ts = excluded.start_ts, end_ts = excluded.end_ts,
		 evidence_note_ids = excluded.evidence_note_ids, updated_ts = excluded.updated_ts`,
		e.FromID, e.ToID, e.EdgeType, e.Weight, e.StartTS, e.EndTS, string(evidenceJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	return nil
}

// ListByType returns all edges of one type, ordered by endpoints.
func (r *EdgeRepo) ListByType(ctx context.Context, edgeType string) ([]Edge, error) {
	return r.list(ctx,
		`SELECT from_id, to_id, edge_type, weight, start_ts, end_ts, evidence_note_ids, updated_ts
		 FROM edges WHERE edge_type = ? ORDER BY from_id, to_id`,
		edgeType)
}

// ListAll returns every edge, ordered by endpoints then type.
func (r *EdgeRepo) ListAll(ctx context.Context) ([]Edge, error) {
	return r.list(ctx,
		`SELECT from_id, to_id, edge_type, weight, start_ts, end_ts, evidence_note_ids, updated_ts
		 FROM edges ORDER BY from_id, to_id, edge_type`)
}

// CountUpdatedSince returns the number of edges touched at or after ts.
func (r *EdgeRepo) CountUpdatedSince(ctx context.Context, ts int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE updated_ts >= ?`, ts).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return n, nil
}

// DanglingEvidenceCount returns the number of evidence note ids across all
// edges that do not resolve to a stored note.
func (r *EdgeRepo) DanglingEvidenceCount(ctx context.Context) (int, error) {
	edges, err := r.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	dangling := 0
	for _, e := range edges {
		for _, id := range e.EvidenceNoteIDs {
			var exists int
			err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE id = ?`, id).Scan(&exists)
			if err != nil {
				return 0, fmt.Errorf("failed to check evidence note: %w", err)
			}
			if exists == 0 {
				dangling++
			}
		}
	}
	return dangling, nil
}

func (r *EdgeRepo) list(ctx context.Context, query string, args ...any) ([]Edge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var evidence string
		if err := rows.Scan(&e.FromID, &e.ToID, &e.EdgeType, &e.Weight, &e.StartTS, &e.EndTS, &evidence, &e.UpdatedTS); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if err := json.Unmarshal([]byte(evidence), &e.EvidenceNoteIDs); err != nil {
			return nil, fmt.Errorf("failed to decode evidence ids: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
