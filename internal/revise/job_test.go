package revise

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"screentrace/internal/llm"
	llmmocks "screentrace/internal/llm/mocks"
	"screentrace/internal/storage"
	vsmocks "screentrace/internal/vectorstore/mocks"
)

type dailyFixture struct {
	job        *DailyJob
	events     *storage.EventRepo
	snapshots  *storage.SnapshotRepo
	notes      *storage.NoteRepo
	entities   *storage.EntityRepo
	edges      *storage.EdgeRepo
	aggregates *storage.AggregateRepo
	model      *llmmocks.MockModel
	embedder   *llmmocks.MockEmbedder
	vectors    *vsmocks.MockVectorStore
}

func newDailyFixture(t *testing.T) *dailyFixture {
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

	ctrl := gomock.NewController(t)
	f := &dailyFixture{
		events:     storage.NewEventRepo(db),
		snapshots:  storage.NewSnapshotRepo(db),
		notes:      storage.NewNoteRepo(db),
		entities:   storage.NewEntityRepo(db),
		edges:      storage.NewEdgeRepo(db),
		aggregates: storage.NewAggregateRepo(db),
		model:      llmmocks.NewMockModel(ctrl),
		embedder:   llmmocks.NewMockEmbedder(ctrl),
		vectors:    vsmocks.NewMockVectorStore(ctrl),
	}
	f.job = NewDailyJob(
		Config{NotesDir: t.TempDir(), Collection: "notes", Timezone: time.UTC},
		f.events,
		f.snapshots,
		f.notes,
		f.entities,
		storage.NewNoteEntityRepo(db),
		f.edges,
		f.aggregates,
		f.model,
		f.embedder,
		f.vectors,
	)
	return f
}

// seedDay inserts one sealed browsing event and one hourly note so the day
// has something to revise. Returns the hourly note.
func (f *dailyFixture) seedDay(t *testing.T, dayStart int64) *storage.NoteRecord {
	t.Helper()
	ctx := context.Background()

	e, err := f.events.Open(ctx, &storage.Event{
		MonitorID: 1, AppID: "org.mozilla.firefox", AppName: "Firefox",
		WindowTitle: "Go docs", URL: "https://go.dev/doc",
	}, dayStart)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := f.events.Seal(ctx, e.ID, dayStart+3600); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	note := &storage.NoteRecord{
		Type:        storage.NoteTypeHour,
		StartTS:     dayStart,
		EndTS:       dayStart + 3600,
		FilePath:    "/notes/hour.md",
		JSONPayload: `{"schema_version":"hour.v1","summary":"browsing go docs","activities":[],"topics":["go"],"media":[],"co_activities":[],"entities":[]}`,
	}
	if err := f.notes.UpsertByWindow(ctx, note); err != nil {
		t.Fatalf("UpsertByWindow() error = %v", err)
	}
	return note
}

func stubSynthesis(evidenceID string) *llm.DaySynthesisV1 {
	return &llm.DaySynthesisV1{
		SchemaVersion: llm.DaySchemaVersion,
		Summary:       "A day reading Go documentation.",
		Highlights:    []string{"read the language spec"},
		Entities: []llm.EntityMention{
			{Name: "Go", Type: "topic", Confidence: 0.9},
		},
		ProposedEdges: []llm.ProposedEdge{
			{From: "Go docs", To: "Go", EdgeType: "ABOUT_TOPIC", Weight: 0.8, EvidenceNoteIDs: []string{evidenceID}},
		},
	}
}

func (f *dailyFixture) expectEmbedding() {
	f.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return([][]float32{{0.1}}, nil)
	f.vectors.EXPECT().Upsert(gomock.Any(), "notes", gomock.Any()).Return(nil)
}

func TestDailyJob_WritesGraphNoteAndAggregates(t *testing.T) {
	f := newDailyFixture(t)
	ctx := context.Background()
	dayStart, dayEnd := int64(0), int64(86400)

	note := f.seedDay(t, dayStart)
	f.model.EXPECT().SynthesizeDay(gomock.Any(), gomock.Any()).Return(stubSynthesis(note.ID), nil)
	f.expectEmbedding()

	if err := f.job.Run(ctx, dayStart, dayEnd); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	all, err := f.edges.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	// One derived VISITED_DOMAIN edge plus one proposed ABOUT_TOPIC edge.
	byType := map[string]int{}
	for _, e := range all {
		byType[e.EdgeType]++
	}
	if byType[storage.EdgeVisitedDomain] != 1 || byType[storage.EdgeAboutTopic] != 1 {
		t.Errorf("edges by type = %v, want one VISITED_DOMAIN and one ABOUT_TOPIC", byType)
	}

	if _, err := f.notes.GetByWindow(ctx, storage.NoteTypeDay, dayStart, dayEnd); err != nil {
		t.Errorf("day note missing: %v", err)
	}

	aggs, err := f.aggregates.ListPeriod(ctx, "day", dayStart)
	if err != nil {
		t.Fatalf("ListPeriod() error = %v", err)
	}
	if len(aggs) == 0 {
		t.Error("no aggregates written for the day")
	}
}

func TestDailyJob_FailedSynthesisLeavesZeroEdges(t *testing.T) {
	f := newDailyFixture(t)
	ctx := context.Background()

	f.seedDay(t, 0)
	f.model.EXPECT().SynthesizeDay(gomock.Any(), gomock.Any()).
		Return(nil, llm.ErrInvalidOutput).Times(2)

	err := f.job.Run(ctx, 0, 86400)
	if err == nil {
		t.Fatal("Run() did not error after two invalid outputs")
	}
	if !errors.Is(err, llm.ErrInvalidOutput) {
		t.Errorf("error %v does not wrap ErrInvalidOutput", err)
	}

	// The model is consulted before any edge write; a failed day leaves the
	// graph untouched.
	all, err := f.edges.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("failed synthesis left %d edges behind", len(all))
	}
	if _, err := f.notes.GetByWindow(ctx, storage.NoteTypeDay, 0, 86400); err != storage.ErrNotFound {
		t.Errorf("failed synthesis left a day note behind: err = %v", err)
	}
}

func TestDailyJob_RerunUpsertsInPlace(t *testing.T) {
	f := newDailyFixture(t)
	ctx := context.Background()

	note := f.seedDay(t, 0)
	f.model.EXPECT().SynthesizeDay(gomock.Any(), gomock.Any()).Return(stubSynthesis(note.ID), nil).Times(2)
	f.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return([][]float32{{0.1}}, nil).Times(2)
	f.vectors.EXPECT().Upsert(gomock.Any(), "notes", gomock.Any()).Return(nil).Times(2)

	if err := f.job.Run(ctx, 0, 86400); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first, _ := f.edges.ListAll(ctx)

	if err := f.job.Run(ctx, 0, 86400); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	second, _ := f.edges.ListAll(ctx)

	if len(first) != len(second) {
		t.Errorf("re-run changed edge count: %d -> %d", len(first), len(second))
	}
}

func TestDailyJob_DropsProposedEdgeWithUnknownEvidence(t *testing.T) {
	f := newDailyFixture(t)
	ctx := context.Background()

	f.seedDay(t, 0)
	f.model.EXPECT().SynthesizeDay(gomock.Any(), gomock.Any()).
		Return(stubSynthesis("hallucinated-note-id"), nil)
	f.expectEmbedding()

	if err := f.job.Run(ctx, 0, 86400); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	all, _ := f.edges.ListAll(ctx)
	for _, e := range all {
		if e.EdgeType == storage.EdgeAboutTopic {
			t.Errorf("edge with entirely unknown evidence was written: %+v", e)
		}
	}
}

func TestDailyJob_NoHourlyNotesSkips(t *testing.T) {
	f := newDailyFixture(t)

	// No notes for the day: no model call, no error.
	if err := f.job.Run(context.Background(), 0, 86400); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
