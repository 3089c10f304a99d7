package revise

import (
	"context"
	"testing"

	"screentrace/internal/storage"
)

func newTestEntities(t *testing.T) *storage.EntityRepo {
	t.Helper()
	db, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return storage.NewEntityRepo(db)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Python", "python"},
		{"python (language)", "python"},
		{"Python (programming language)", "python"},
		{"  Go  ", "go"},
		{"C++", "c"},
		{"Node.js", "nodejs"},
		{"visual   studio  code", "visual studio code"},
		{"(everything parenthetical)", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMergePass_CollapsesDuplicates(t *testing.T) {
	entities := newTestEntities(t)
	ctx := context.Background()

	first, _ := entities.GetOrCreate(ctx, "topic", "Python")
	second, _ := entities.GetOrCreate(ctx, "topic", "python (language)")
	// Same name under a different type never merges.
	appPython, _ := entities.GetOrCreate(ctx, "app", "Python")

	merged, err := MergePass(ctx, entities)
	if err != nil {
		t.Fatalf("MergePass() error = %v", err)
	}
	if merged != 1 {
		t.Fatalf("MergePass() = %d merges, want 1", merged)
	}

	// The earliest-created entity survives.
	got, err := entities.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.MergedInto != first.ID {
		t.Errorf("absorbed merged_into = %q, want survivor %s", got.MergedInto, first.ID)
	}

	survivor, _ := entities.GetByID(ctx, first.ID)
	if survivor.MergedInto != "" {
		t.Errorf("survivor was merged away into %s", survivor.MergedInto)
	}

	app, _ := entities.GetByID(ctx, appPython.ID)
	if app.MergedInto != "" {
		t.Error("entity of a different type was merged")
	}
}

func TestMergePass_SameSecondCreationOrderIsStable(t *testing.T) {
	entities := newTestEntities(t)
	ctx := context.Background()

	// Hourly runs create colliding entities within the same second; the
	// survivor must still be the first one created, not whichever uuid
	// happens to sort lower.
	first, _ := entities.GetOrCreate(ctx, "topic", "Rust")
	var rest []*storage.Entity
	for _, name := range []string{"rust (language)", "Rust (Programming Language)", "RUST"} {
		e, err := entities.GetOrCreate(ctx, "topic", name)
		if err != nil {
			t.Fatalf("GetOrCreate(%q) error = %v", name, err)
		}
		rest = append(rest, e)
	}

	count, err := MergePass(ctx, entities)
	if err != nil {
		t.Fatalf("MergePass() error = %v", err)
	}
	if count != len(rest) {
		t.Fatalf("MergePass() = %d merges, want %d", count, len(rest))
	}

	survivor, _ := entities.GetByID(ctx, first.ID)
	if survivor.MergedInto != "" {
		t.Fatalf("first-created entity was merged into %s", survivor.MergedInto)
	}
	for _, e := range rest {
		got, _ := entities.GetByID(ctx, e.ID)
		if got.MergedInto != first.ID {
			t.Errorf("%q merged into %q, want first-created %s", e.CanonicalName, got.MergedInto, first.ID)
		}
	}
}

func TestMergePass_IsIdempotent(t *testing.T) {
	entities := newTestEntities(t)
	ctx := context.Background()

	entities.GetOrCreate(ctx, "topic", "Go")
	entities.GetOrCreate(ctx, "topic", "go (language)")

	if _, err := MergePass(ctx, entities); err != nil {
		t.Fatalf("first MergePass() error = %v", err)
	}
	merged, err := MergePass(ctx, entities)
	if err != nil {
		t.Fatalf("second MergePass() error = %v", err)
	}
	if merged != 0 {
		t.Errorf("second pass merged %d entities, want 0", merged)
	}
}

func TestMergePass_MatchesAliases(t *testing.T) {
	entities := newTestEntities(t)
	ctx := context.Background()

	// After a merge the survivor carries the absorbed name as an alias; a
	// later entity matching that alias must also fold in.
	a, _ := entities.GetOrCreate(ctx, "topic", "JavaScript")
	b, _ := entities.GetOrCreate(ctx, "topic", "javascript (web)")
	if err := entities.Merge(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	late, _ := entities.GetOrCreate(ctx, "topic", "Javascript (Web)")
	if _, err := MergePass(ctx, entities); err != nil {
		t.Fatalf("MergePass() error = %v", err)
	}

	got, _ := entities.GetByID(ctx, late.ID)
	if got.MergedInto != a.ID {
		t.Errorf("alias match merged into %q, want %s", got.MergedInto, a.ID)
	}
}
