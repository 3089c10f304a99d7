package storage

import (
	"context"
	"testing"
)

func insertNote(t *testing.T, repo *NoteRepo, noteType string, startTS int64) *NoteRecord {
	t.Helper()
	note := &NoteRecord{
		Type:        noteType,
		StartTS:     startTS,
		EndTS:       startTS + 3600,
		FilePath:    "/tmp/note.md",
		JSONPayload: `{}`,
	}
	if err := repo.UpsertByWindow(context.Background(), note); err != nil {
		t.Fatalf("UpsertByWindow() error = %v", err)
	}
	return note
}

func TestEntityRepo_GetOrCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewEntityRepo(db)
	ctx := context.Background()

	a, err := repo.GetOrCreate(ctx, "topic", "Python")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	again, err := repo.GetOrCreate(ctx, "topic", "Python")
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}
	if a.ID != again.ID {
		t.Errorf("same (type, name) produced two entities: %s and %s", a.ID, again.ID)
	}

	// Same name under a different type is a different entity.
	app, err := repo.GetOrCreate(ctx, "app", "Python")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if app.ID == a.ID {
		t.Error("entities of different types share an id")
	}

	// ListActive excludes merged rows.
	b, _ := repo.GetOrCreate(ctx, "topic", "python (language)")
	if err := repo.Merge(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	for _, e := range active {
		if e.ID == b.ID {
			t.Error("ListActive() returned a merged-away entity")
		}
	}
}

func TestEntityRepo_MergeRepointsAssociations(t *testing.T) {
	db := newTestDB(t)
	entities := NewEntityRepo(db)
	noteEntities := NewNoteEntityRepo(db)
	noteRepo := NewNoteRepo(db)
	ctx := context.Background()

	note := insertNote(t, noteRepo, NoteTypeHour, 0)
	survivor, _ := entities.GetOrCreate(ctx, "topic", "go")
	absorbed, _ := entities.GetOrCreate(ctx, "topic", "golang")

	// Both entities attached to the same note with different strengths.
	if err := noteEntities.Upsert(ctx, note.ID, survivor.ID, 0.4); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := noteEntities.Upsert(ctx, note.ID, absorbed.ID, 0.9); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := entities.Merge(ctx, survivor.ID, absorbed.ID); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	assocs, err := noteEntities.ListByNote(ctx, note.ID)
	if err != nil {
		t.Fatalf("ListByNote() error = %v", err)
	}
	if len(assocs) != 1 {
		t.Fatalf("got %d associations after merge, want 1", len(assocs))
	}
	if assocs[0].EntityID != survivor.ID {
		t.Errorf("association points at %s, want survivor %s", assocs[0].EntityID, survivor.ID)
	}
	// The stronger of the two collided strengths wins.
	if assocs[0].Strength != 0.9 {
		t.Errorf("strength = %v, want 0.9", assocs[0].Strength)
	}

	got, _ := entities.GetByID(ctx, absorbed.ID)
	if got.MergedInto != survivor.ID {
		t.Errorf("absorbed merged_into = %q, want %s", got.MergedInto, survivor.ID)
	}

	merged, _ := entities.GetByID(ctx, survivor.ID)
	found := false
	for _, alias := range merged.Aliases {
		if alias == "golang" {
			found = true
		}
	}
	if !found {
		t.Errorf("survivor aliases %v missing absorbed name", merged.Aliases)
	}
}

func TestEntityRepo_MergeRewritesEdges(t *testing.T) {
	db := newTestDB(t)
	entities := NewEntityRepo(db)
	edges := NewEdgeRepo(db)
	ctx := context.Background()

	survivor, _ := entities.GetOrCreate(ctx, "topic", "rust")
	absorbed, _ := entities.GetOrCreate(ctx, "topic", "rust lang")
	other, _ := entities.GetOrCreate(ctx, "app", "Firefox")

	if err := edges.Upsert(ctx, &Edge{FromID: absorbed.ID, ToID: other.ID, EdgeType: EdgeAboutTopic, Weight: 2}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := entities.Merge(ctx, survivor.ID, absorbed.ID); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	all, err := edges.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d edges after merge, want 1", len(all))
	}
	if all[0].FromID != survivor.ID {
		t.Errorf("edge from_id = %s, want survivor %s", all[0].FromID, survivor.ID)
	}

	// No edge endpoint may reference the absorbed entity anymore.
	for _, e := range all {
		if e.FromID == absorbed.ID || e.ToID == absorbed.ID {
			t.Errorf("edge still references absorbed entity: %+v", e)
		}
	}
}

func TestEntityRepo_MergeIntoSelfRejected(t *testing.T) {
	db := newTestDB(t)
	repo := NewEntityRepo(db)
	ctx := context.Background()

	e, _ := repo.GetOrCreate(ctx, "topic", "self")
	if err := repo.Merge(ctx, e.ID, e.ID); err == nil {
		t.Error("Merge() into self did not error")
	}
}
