package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"screentrace/internal/contextutil"
	"screentrace/internal/evidence"
	"screentrace/internal/llm"
	"screentrace/internal/notes"
	"screentrace/internal/storage"
	"screentrace/internal/vectorstore"
)

// Config holds the hourly job's fixed parameters.
type Config struct {
	NotesDir         string
	Collection       string
	Timezone         *time.Location
	MaxKeyframes     int
	MaxSnippetTokens int
}

// HourlyJob turns one hour of captured evidence into a durable note. A run
// either produces a complete validated note or nothing; there are no partial
// notes.
type HourlyJob struct {
	cfg          Config
	events       *storage.EventRepo
	shots        *storage.ScreenshotRepo
	buffers      *storage.BufferRepo
	snapshots    *storage.SnapshotRepo
	notes        storage.NoteStore
	entities     *storage.EntityRepo
	noteEntities *storage.NoteEntityRepo
	model        llm.Model
	embedder     llm.Embedder
	vectors      vectorstore.VectorStore
}

// NewHourlyJob wires an hourly summarization job.
func NewHourlyJob(
	cfg Config,
	events *storage.EventRepo,
	shots *storage.ScreenshotRepo,
	buffers *storage.BufferRepo,
	snapshots *storage.SnapshotRepo,
	noteStore storage.NoteStore,
	entities *storage.EntityRepo,
	noteEntities *storage.NoteEntityRepo,
	model llm.Model,
	embedder llm.Embedder,
	vectors vectorstore.VectorStore,
) *HourlyJob {
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	if cfg.MaxKeyframes <= 0 {
		cfg.MaxKeyframes = 12
	}
	if cfg.MaxSnippetTokens <= 0 {
		cfg.MaxSnippetTokens = 6000
	}
	return &HourlyJob{
		cfg:          cfg,
		events:       events,
		shots:        shots,
		buffers:      buffers,
		snapshots:    snapshots,
		notes:        noteStore,
		entities:     entities,
		noteEntities: noteEntities,
		model:        model,
		embedder:     embedder,
		vectors:      vectors,
	}
}

// Run summarizes the window [startTS, endTS). Re-running a window overwrites
// the existing note's payload and file while keeping its id.
func (j *HourlyJob) Run(ctx context.Context, startTS, endTS int64) error {
	logger := contextutil.LoggerFromContext(ctx)

	input, err := j.buildInput(ctx, startTS, endTS)
	if err != nil {
		return err
	}
	if input.Timeline == "" && len(input.Snippets) == 0 {
		logger.Info("no activity in window, skipping summary", "start_ts", startTS)
		return nil
	}

	summary, err := j.summarizeWithRetry(ctx, *input)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary payload: %w", err)
	}

	start := time.Unix(startTS, 0).In(j.cfg.Timezone)
	end := time.Unix(endTS, 0).In(j.cfg.Timezone)
	markdown := notes.RenderHour(summary, start, end)
	filePath := notes.HourNotePath(j.cfg.NotesDir, start)
	if err := notes.WriteFile(filePath, markdown); err != nil {
		return err
	}

	note := &storage.NoteRecord{
		Type:        storage.NoteTypeHour,
		StartTS:     startTS,
		EndTS:       endTS,
		FilePath:    filePath,
		JSONPayload: string(payload),
	}
	if err := j.notes.UpsertByWindow(ctx, note); err != nil {
		return err
	}

	if err := j.attachEntities(ctx, note.ID, summary.Entities); err != nil {
		return err
	}

	// Embedding is best effort here; the backfill job picks up anything
	// that fails, and cleanup will not run for the day until it has.
	if err := EmbedNote(ctx, j.embedder, j.vectors, j.notes, j.cfg.Collection, note, notes.EmbeddingTextHour(summary)); err != nil {
		logger.Warn("failed to embed hourly note", "note_id", note.ID, "error", err)
	}

	logger.Info("hourly note written", "note_id", note.ID, "start_ts", startTS, "entities", len(summary.Entities))
	return nil
}

// summarizeWithRetry calls the model, retrying exactly once when the output
// fails schema validation. Transient failures are returned to the scheduler.
func (j *HourlyJob) summarizeWithRetry(ctx context.Context, input llm.HourInput) (*llm.HourSummaryV1, error) {
	summary, err := j.model.SummarizeHour(ctx, input)
	if errors.Is(err, llm.ErrInvalidOutput) {
		contextutil.LoggerFromContext(ctx).Warn("hourly summary failed validation, retrying once", "error", err)
		summary, err = j.model.SummarizeHour(ctx, input)
	}
	if err != nil {
		return nil, fmt.Errorf("hourly summarization failed: %w", err)
	}
	return summary, nil
}

func (j *HourlyJob) buildInput(ctx context.Context, startTS, endTS int64) (*llm.HourInput, error) {
	events, err := j.events.ListWindow(ctx, startTS, endTS)
	if err != nil {
		return nil, err
	}
	shots, err := j.shots.ListWindow(ctx, startTS, endTS)
	if err != nil {
		return nil, err
	}
	rows, err := j.buffers.ListWindow(ctx, startTS, endTS)
	if err != nil {
		return nil, err
	}

	logger := contextutil.LoggerFromContext(ctx)
	buffers := make([]evidence.BufferText, 0, len(rows))
	for _, b := range rows {
		text, err := evidence.ReadCompressed(b.Path)
		if err != nil {
			// A missing buffer file degrades the evidence, it does not
			// block the summary.
			logger.Warn("failed to read text buffer", "buffer_id", b.ID, "error", err)
			continue
		}
		buffers = append(buffers, evidence.BufferText{Buffer: b, Text: text})
	}

	sel := evidence.Select(evidence.SelectionConfig{
		MaxKeyframes:     j.cfg.MaxKeyframes,
		MaxSnippetTokens: j.cfg.MaxSnippetTokens,
	}, events, shots, buffers)

	input := &llm.HourInput{
		StartTS:  startTS,
		EndTS:    endTS,
		Timeline: renderTimeline(events, j.cfg.Timezone),
	}
	for _, kf := range sel.Keyframes {
		input.Keyframes = append(input.Keyframes, fmt.Sprintf("[%s] monitor %d, diff %d (%s)",
			time.Unix(kf.Screenshot.CapturedTS, 0).In(j.cfg.Timezone).Format("15:04:05"),
			kf.Screenshot.MonitorID, kf.Screenshot.DiffScore, kf.Reason))
	}
	for _, s := range sel.Snippets {
		input.Snippets = append(input.Snippets, s.Text)
	}

	nowPlaying, err := j.snapshots.NowPlayingWindow(ctx, startTS, endTS)
	if err != nil {
		return nil, err
	}
	for i, np := range nowPlaying {
		if i > 0 {
			input.NowPlaying += "; "
		}
		input.NowPlaying += fmt.Sprintf("%s — %s (%s)", np.Title, np.Artist, np.App)
	}

	locations, err := j.snapshots.LocationWindow(ctx, startTS, endTS)
	if err != nil {
		return nil, err
	}
	if len(locations) > 0 {
		input.Location = locations[len(locations)-1].Text
	}

	return input, nil
}

func (j *HourlyJob) attachEntities(ctx context.Context, noteID string, mentions []llm.EntityMention) error {
	for _, m := range mentions {
		entity, err := j.entities.GetOrCreate(ctx, m.Type, m.Name)
		if err != nil {
			return fmt.Errorf("failed to resolve entity %q: %w", m.Name, err)
		}
		if err := j.noteEntities.Upsert(ctx, noteID, entity.ID, m.Confidence); err != nil {
			return fmt.Errorf("failed to attach entity %q: %w", m.Name, err)
		}
	}
	return nil
}

// renderTimeline flattens event spans into one line per span, in start order.
func renderTimeline(events []storage.Event, tz *time.Location) string {
	var out string
	for _, e := range events {
		line := fmt.Sprintf("%s–%s %s",
			time.Unix(e.StartTS, 0).In(tz).Format("15:04:05"),
			time.Unix(e.EndTS, 0).In(tz).Format("15:04:05"),
			e.AppName)
		if e.WindowTitle != "" {
			line += " | " + e.WindowTitle
		}
		if e.URL != "" {
			line += " | " + e.URL
		}
		if e.DocPath != "" {
			line += " | doc: " + filepath.Base(e.DocPath)
		}
		if e.NowPlaying != "" {
			line += " | playing: " + e.NowPlaying
		}
		out += line + "\n"
	}
	return out
}

