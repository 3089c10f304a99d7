package storage

import (
	"context"
	"testing"
)

func TestEdgeRepo_UpsertIsKeyedByTriple(t *testing.T) {
	db := newTestDB(t)
	repo := NewEdgeRepo(db)
	ctx := context.Background()

	edge := &Edge{FromID: "a", ToID: "b", EdgeType: EdgeUsedApp, Weight: 1.5}
	if err := repo.Upsert(ctx, edge); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Re-deriving the same triple updates in place.
	edge.Weight = 3.0
	edge.EvidenceNoteIDs = []string{"note-1"}
	if err := repo.Upsert(ctx, edge); err != nil {
		t.Fatalf("Upsert() second call error = %v", err)
	}

	// A different type between the same endpoints is a separate edge.
	if err := repo.Upsert(ctx, &Edge{FromID: "a", ToID: "b", EdgeType: EdgeCoOccurred, Weight: 1}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d edges, want 2", len(all))
	}

	used, err := repo.ListByType(ctx, EdgeUsedApp)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	if len(used) != 1 {
		t.Fatalf("got %d USED_APP edges, want 1", len(used))
	}
	if used[0].Weight != 3.0 {
		t.Errorf("weight = %v, want 3.0 after re-derive", used[0].Weight)
	}
	if len(used[0].EvidenceNoteIDs) != 1 || used[0].EvidenceNoteIDs[0] != "note-1" {
		t.Errorf("evidence = %v, want [note-1]", used[0].EvidenceNoteIDs)
	}
}

func TestEdgeRepo_RejectsNegativeWeight(t *testing.T) {
	db := newTestDB(t)
	repo := NewEdgeRepo(db)

	err := repo.Upsert(context.Background(), &Edge{FromID: "a", ToID: "b", EdgeType: EdgeWatched, Weight: -0.1})
	if err == nil {
		t.Error("Upsert() with negative weight did not error")
	}
}

func TestEdgeRepo_DanglingEvidenceCount(t *testing.T) {
	db := newTestDB(t)
	edges := NewEdgeRepo(db)
	noteRepo := NewNoteRepo(db)
	ctx := context.Background()

	note := insertNote(t, noteRepo, NoteTypeHour, 3600)

	if err := edges.Upsert(ctx, &Edge{
		FromID: "a", ToID: "b", EdgeType: EdgeAboutTopic, Weight: 1,
		EvidenceNoteIDs: []string{note.ID, "missing-note"},
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	n, err := edges.DanglingEvidenceCount(ctx)
	if err != nil {
		t.Fatalf("DanglingEvidenceCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DanglingEvidenceCount() = %d, want 1", n)
	}
}
