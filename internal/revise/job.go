package revise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"screentrace/internal/contextutil"
	"screentrace/internal/llm"
	"screentrace/internal/notes"
	"screentrace/internal/storage"
	"screentrace/internal/summarize"
	"screentrace/internal/vectorstore"
)

// Config holds the daily job's fixed parameters.
type Config struct {
	NotesDir   string
	Collection string
	Timezone   *time.Location
}

// DailyJob revises one finished day: merges duplicate entities, re-derives
// the day's graph edges, synthesizes the daily note, and recomputes
// aggregates. Every step is idempotent so the scheduler can re-run a day.
type DailyJob struct {
	cfg          Config
	events       *storage.EventRepo
	snapshots    *storage.SnapshotRepo
	notes        storage.NoteStore
	entities     *storage.EntityRepo
	noteEntities *storage.NoteEntityRepo
	edges        *storage.EdgeRepo
	aggregates   *storage.AggregateRepo
	model        llm.Model
	embedder     llm.Embedder
	vectors      vectorstore.VectorStore
}

// NewDailyJob wires a daily revision job.
func NewDailyJob(
	cfg Config,
	events *storage.EventRepo,
	snapshots *storage.SnapshotRepo,
	noteStore storage.NoteStore,
	entities *storage.EntityRepo,
	noteEntities *storage.NoteEntityRepo,
	edges *storage.EdgeRepo,
	aggregates *storage.AggregateRepo,
	model llm.Model,
	embedder llm.Embedder,
	vectors vectorstore.VectorStore,
) *DailyJob {
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &DailyJob{
		cfg:          cfg,
		events:       events,
		snapshots:    snapshots,
		notes:        noteStore,
		entities:     entities,
		noteEntities: noteEntities,
		edges:        edges,
		aggregates:   aggregates,
		model:        model,
		embedder:     embedder,
		vectors:      vectors,
	}
}

// Run revises the day [dayStart, dayEnd). The model is consulted before any
// edge is written, so a failed synthesis leaves the graph untouched and the
// scheduler retries the whole day.
func (j *DailyJob) Run(ctx context.Context, dayStart, dayEnd int64) error {
	logger := contextutil.LoggerFromContext(ctx)

	merged, err := MergePass(ctx, j.entities)
	if err != nil {
		return fmt.Errorf("entity merge pass failed: %w", err)
	}

	events, err := j.events.ListWindow(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	nowPlaying, err := j.snapshots.NowPlayingWindow(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	hourNotes, err := j.notes.ListRange(ctx, storage.NoteTypeHour, dayStart, dayEnd)
	if err != nil {
		return err
	}
	if len(hourNotes) == 0 {
		logger.Info("no hourly notes for day, skipping revision", "day_start", dayStart)
		return nil
	}

	derived := DeriveEdges(events, nowPlaying, dayEnd, hourNotes)

	synthesis, err := j.synthesizeWithRetry(ctx, dayStart, dayEnd, hourNotes)
	if err != nil {
		return err
	}

	for _, d := range derived {
		if err := j.upsertDerived(ctx, dayStart, dayEnd, d); err != nil {
			return err
		}
	}
	proposed, err := j.upsertProposed(ctx, dayStart, dayEnd, synthesis, hourNotes)
	if err != nil {
		return err
	}

	note, err := j.writeDayNote(ctx, dayStart, dayEnd, synthesis)
	if err != nil {
		return err
	}

	aggs := ComputeDayAggregates(dayStart, dayEnd, events, nowPlaying, hourNotes)
	if err := j.aggregates.ReplacePeriod(ctx, "day", dayStart, aggs); err != nil {
		return fmt.Errorf("failed to replace day aggregates: %w", err)
	}

	logger.Info("daily revision complete",
		"day_start", dayStart, "merged_entities", merged,
		"derived_edges", len(derived), "proposed_edges", proposed,
		"note_id", note.ID, "aggregates", len(aggs))
	return nil
}

func (j *DailyJob) synthesizeWithRetry(ctx context.Context, dayStart, dayEnd int64, hourNotes []storage.NoteRecord) (*llm.DaySynthesisV1, error) {
	input := llm.DayInput{StartTS: dayStart, EndTS: dayEnd}
	for _, n := range hourNotes {
		input.Notes = append(input.Notes, llm.NoteDigest{
			NoteID:  n.ID,
			StartTS: n.StartTS,
			EndTS:   n.EndTS,
			Payload: n.JSONPayload,
		})
	}

	synthesis, err := j.model.SynthesizeDay(ctx, input)
	if errors.Is(err, llm.ErrInvalidOutput) {
		contextutil.LoggerFromContext(ctx).Warn("daily synthesis failed validation, retrying once", "error", err)
		synthesis, err = j.model.SynthesizeDay(ctx, input)
	}
	if err != nil {
		return nil, fmt.Errorf("daily synthesis failed: %w", err)
	}
	return synthesis, nil
}

func (j *DailyJob) upsertDerived(ctx context.Context, dayStart, dayEnd int64, d DerivedEdge) error {
	from, err := j.entities.GetOrCreate(ctx, d.FromType, d.FromName)
	if err != nil {
		return fmt.Errorf("failed to resolve edge endpoint %q: %w", d.FromName, err)
	}
	to, err := j.entities.GetOrCreate(ctx, d.ToType, d.ToName)
	if err != nil {
		return fmt.Errorf("failed to resolve edge endpoint %q: %w", d.ToName, err)
	}
	if from.ID == to.ID {
		return nil
	}
	return j.edges.Upsert(ctx, &storage.Edge{
		FromID:          from.ID,
		ToID:            to.ID,
		EdgeType:        d.EdgeType,
		Weight:          d.Weight,
		StartTS:         dayStart,
		EndTS:           dayEnd,
		EvidenceNoteIDs: d.EvidenceNoteIDs,
	})
}

// upsertProposed resolves model-proposed edges to entity ids and writes them.
// Evidence ids are checked against the day's hourly notes; an edge whose
// evidence is entirely unknown is dropped.
func (j *DailyJob) upsertProposed(ctx context.Context, dayStart, dayEnd int64, synthesis *llm.DaySynthesisV1, hourNotes []storage.NoteRecord) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	// Entity types as the synthesis declared them; unlisted endpoints
	// default to topic.
	types := make(map[string]string)
	for _, e := range synthesis.Entities {
		types[e.Name] = e.Type
	}
	typeOf := func(name string) string {
		if t, ok := types[name]; ok && t != "" {
			return t
		}
		return keyTopic
	}

	known := make(map[string]bool, len(hourNotes))
	for _, n := range hourNotes {
		known[n.ID] = true
	}

	written := 0
	for _, p := range synthesis.ProposedEdges {
		var evidence []string
		for _, id := range p.EvidenceNoteIDs {
			if known[id] {
				evidence = append(evidence, id)
			}
		}
		if len(evidence) == 0 {
			logger.Warn("dropping proposed edge with no known evidence",
				"from", p.From, "to", p.To, "type", p.EdgeType)
			continue
		}

		from, err := j.entities.GetOrCreate(ctx, typeOf(p.From), p.From)
		if err != nil {
			return written, fmt.Errorf("failed to resolve proposed endpoint %q: %w", p.From, err)
		}
		to, err := j.entities.GetOrCreate(ctx, typeOf(p.To), p.To)
		if err != nil {
			return written, fmt.Errorf("failed to resolve proposed endpoint %q: %w", p.To, err)
		}
		if from.ID == to.ID {
			continue
		}

		if err := j.edges.Upsert(ctx, &storage.Edge{
			FromID:          from.ID,
			ToID:            to.ID,
			EdgeType:        p.EdgeType,
			Weight:          p.Weight,
			StartTS:         dayStart,
			EndTS:           dayEnd,
			EvidenceNoteIDs: evidence,
		}); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (j *DailyJob) writeDayNote(ctx context.Context, dayStart, dayEnd int64, synthesis *llm.DaySynthesisV1) (*storage.NoteRecord, error) {
	payload, err := json.Marshal(synthesis)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis payload: %w", err)
	}

	day := time.Unix(dayStart, 0).In(j.cfg.Timezone)
	filePath := notes.DayNotePath(j.cfg.NotesDir, day)
	if err := notes.WriteFile(filePath, notes.RenderDay(synthesis, day)); err != nil {
		return nil, err
	}

	note := &storage.NoteRecord{
		Type:        storage.NoteTypeDay,
		StartTS:     dayStart,
		EndTS:       dayEnd,
		FilePath:    filePath,
		JSONPayload: string(payload),
	}
	if err := j.notes.UpsertByWindow(ctx, note); err != nil {
		return nil, err
	}

	for _, m := range synthesis.Entities {
		entity, err := j.entities.GetOrCreate(ctx, m.Type, m.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve entity %q: %w", m.Name, err)
		}
		if err := j.noteEntities.Upsert(ctx, note.ID, entity.ID, m.Confidence); err != nil {
			return nil, fmt.Errorf("failed to attach entity %q: %w", m.Name, err)
		}
	}

	if err := summarize.EmbedNote(ctx, j.embedder, j.vectors, j.notes, j.cfg.Collection, note, notes.EmbeddingTextDay(synthesis)); err != nil {
		contextutil.LoggerFromContext(ctx).Warn("failed to embed daily note", "note_id", note.ID, "error", err)
	}
	return note, nil
}
