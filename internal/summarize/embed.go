package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"screentrace/internal/contextutil"
	"screentrace/internal/llm"
	"screentrace/internal/notes"
	"screentrace/internal/storage"
	"screentrace/internal/vectorstore"
)

// EmbedNote embeds one note's text and records the point. The embedding_id
// is set only after the vector store confirms the upsert, so a non-empty
// embedding_id always means the point exists.
func EmbedNote(ctx context.Context, embedder llm.Embedder, vectors vectorstore.VectorStore, noteStore storage.NoteStore, collection string, note *storage.NoteRecord, text string) error {
	vecs, err := embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("failed to embed note text: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}

	day := time.Unix(note.StartTS, 0).Format("20060102")
	point := vectorstore.Point{
		ID:  note.ID,
		Vec: vecs[0],
		Meta: map[string]any{
			"note_id":   note.ID,
			"note_type": note.Type,
			"day":       day,
		},
	}
	if err := vectors.Upsert(ctx, collection, []vectorstore.Point{point}); err != nil {
		return fmt.Errorf("failed to upsert note vector: %w", err)
	}
	if err := noteStore.SetEmbeddingID(ctx, note.ID, note.ID); err != nil {
		return fmt.Errorf("failed to record embedding id: %w", err)
	}
	return nil
}

// BackfillJob embeds notes whose hourly run could not reach the vector store.
// It runs periodically; the cleanup checkpoint depends on it catching up.
type BackfillJob struct {
	notes      storage.NoteStore
	embedder   llm.Embedder
	vectors    vectorstore.VectorStore
	collection string
	batchSize  int
}

// NewBackfillJob wires an embedding backfill job.
func NewBackfillJob(noteStore storage.NoteStore, embedder llm.Embedder, vectors vectorstore.VectorStore, collection string) *BackfillJob {
	return &BackfillJob{
		notes:      noteStore,
		embedder:   embedder,
		vectors:    vectors,
		collection: collection,
		batchSize:  32,
	}
}

// Run embeds missing notes oldest first until none remain or an attempt
// fails. The window arguments are ignored; backfill always covers the whole
// backlog.
func (j *BackfillJob) Run(ctx context.Context, _, _ int64) error {
	logger := contextutil.LoggerFromContext(ctx)

	total := 0
	for {
		batch, err := j.notes.ListMissingEmbedding(ctx, j.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			note := &batch[i]
			text, err := embeddingText(note)
			if err != nil {
				logger.Warn("skipping note with unreadable payload", "note_id", note.ID, "error", err)
				continue
			}
			if err := EmbedNote(ctx, j.embedder, j.vectors, j.notes, j.collection, note, text); err != nil {
				return fmt.Errorf("backfill stopped at note %s: %w", note.ID, err)
			}
			total++
		}
		if len(batch) < j.batchSize {
			break
		}
	}

	if total > 0 {
		logger.Info("embedding backfill complete", "embedded", total)
	}
	return nil
}

func embeddingText(note *storage.NoteRecord) (string, error) {
	switch note.Type {
	case storage.NoteTypeHour:
		var s llm.HourSummaryV1
		if err := json.Unmarshal([]byte(note.JSONPayload), &s); err != nil {
			return "", fmt.Errorf("failed to decode hourly payload: %w", err)
		}
		return notes.EmbeddingTextHour(&s), nil
	case storage.NoteTypeDay:
		var s llm.DaySynthesisV1
		if err := json.Unmarshal([]byte(note.JSONPayload), &s); err != nil {
			return "", fmt.Errorf("failed to decode daily payload: %w", err)
		}
		return notes.EmbeddingTextDay(&s), nil
	default:
		return "", fmt.Errorf("unknown note type %q", note.Type)
	}
}
