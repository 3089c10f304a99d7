package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"screentrace/internal/contextutil"
	"screentrace/internal/llm"
	"screentrace/internal/storage"
)

// ErrCheckFailed marks an integrity check that did not pass. Cleanup never
// deletes anything for the day until every check passes.
var ErrCheckFailed = errors.New("integrity check failed")

// Config holds the cleanup job's fixed parameters.
type Config struct {
	CacheDir string
	Timezone *time.Location
}

// Job verifies that a day's durable knowledge fully covers its raw
// artifacts, then purges the artifacts. The deletion-log row commits in the
// same transaction as the row deletions, so a purge either fully happened or
// did not happen at all.
type Job struct {
	cfg          Config
	events       *storage.EventRepo
	shots        *storage.ScreenshotRepo
	buffers      *storage.BufferRepo
	notes        storage.NoteStore
	noteEntities *storage.NoteEntityRepo
	edges        *storage.EdgeRepo
	jobs         *storage.JobRepo
	deletions    *storage.DeletionLogRepo
}

// NewJob wires a checkpoint-gated cleanup job.
func NewJob(
	cfg Config,
	events *storage.EventRepo,
	shots *storage.ScreenshotRepo,
	buffers *storage.BufferRepo,
	noteStore storage.NoteStore,
	noteEntities *storage.NoteEntityRepo,
	edges *storage.EdgeRepo,
	jobs *storage.JobRepo,
	deletions *storage.DeletionLogRepo,
) *Job {
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &Job{
		cfg:          cfg,
		events:       events,
		shots:        shots,
		buffers:      buffers,
		notes:        noteStore,
		noteEntities: noteEntities,
		edges:        edges,
		jobs:         jobs,
		deletions:    deletions,
	}
}

// Run checks the day [dayStart, dayEnd) and purges its raw artifacts. An
// already-purged day is a no-op success.
func (j *Job) Run(ctx context.Context, dayStart, dayEnd int64) error {
	logger := contextutil.LoggerFromContext(ctx)
	day := time.Unix(dayStart, 0).In(j.cfg.Timezone).Format("20060102")

	if _, err := j.deletions.Get(ctx, day); err == nil {
		logger.Info("day already purged", "day", day)
		return nil
	} else if err != storage.ErrNotFound {
		return err
	}

	if err := j.Verify(ctx, dayStart, dayEnd); err != nil {
		return err
	}
	return j.purge(ctx, day, dayStart)
}

// Verify runs every integrity check for the day and returns the first
// failure wrapped in ErrCheckFailed.
func (j *Job) Verify(ctx context.Context, dayStart, dayEnd int64) error {
	if err := j.checkHourNotes(ctx, dayStart, dayEnd); err != nil {
		return err
	}
	if err := j.checkDailySuccess(ctx, dayStart, dayEnd); err != nil {
		return err
	}
	if err := j.checkNotesDurable(ctx, dayStart, dayEnd); err != nil {
		return err
	}
	if err := j.checkGraph(ctx); err != nil {
		return err
	}
	return nil
}

// checkHourNotes requires a validated hourly note and an existing file for
// every hour that saw activity.
func (j *Job) checkHourNotes(ctx context.Context, dayStart, dayEnd int64) error {
	hours, err := j.events.HoursWithActivity(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for _, h := range hours {
		note, err := j.notes.GetByWindow(ctx, storage.NoteTypeHour, h, h+3600)
		if err == storage.ErrNotFound {
			return fmt.Errorf("%w: no hourly note for active hour %d", ErrCheckFailed, h)
		}
		if err != nil {
			return err
		}
		if _, err := llm.ValidateHourSummary([]byte(note.JSONPayload)); err != nil {
			return fmt.Errorf("%w: hourly note %s payload invalid: %v", ErrCheckFailed, note.ID, err)
		}
		if _, err := os.Stat(note.FilePath); err != nil {
			return fmt.Errorf("%w: hourly note %s file missing: %v", ErrCheckFailed, note.ID, err)
		}
	}
	return nil
}

func (j *Job) checkDailySuccess(ctx context.Context, dayStart, dayEnd int64) error {
	job, err := j.jobs.GetByKey(ctx, storage.JobTypeDaily, dayStart, dayEnd)
	if err == storage.ErrNotFound {
		return fmt.Errorf("%w: daily job has not run", ErrCheckFailed)
	}
	if err != nil {
		return err
	}
	if job.Status != storage.JobStatusSuccess {
		return fmt.Errorf("%w: daily job status is %s", ErrCheckFailed, job.Status)
	}
	return nil
}

// checkNotesDurable requires every note of the day, hourly and daily alike,
// to carry an embedding id and to have its rendered file on disk. The
// embedding id is set only after the vector store confirmed the point, so
// that part is a local check with remote meaning.
func (j *Job) checkNotesDurable(ctx context.Context, dayStart, dayEnd int64) error {
	for _, noteType := range []string{storage.NoteTypeHour, storage.NoteTypeDay} {
		list, err := j.notes.ListRange(ctx, noteType, dayStart, dayEnd)
		if err != nil {
			return err
		}
		for _, n := range list {
			if n.EmbeddingID == "" {
				return fmt.Errorf("%w: note %s has no embedding", ErrCheckFailed, n.ID)
			}
			if _, err := os.Stat(n.FilePath); err != nil {
				return fmt.Errorf("%w: note %s file missing: %v", ErrCheckFailed, n.ID, err)
			}
		}
	}
	return nil
}

func (j *Job) checkGraph(ctx context.Context) error {
	dangling, err := j.noteEntities.DanglingCount(ctx)
	if err != nil {
		return err
	}
	if dangling > 0 {
		return fmt.Errorf("%w: %d note-entity rows reference missing rows", ErrCheckFailed, dangling)
	}
	evDangling, err := j.edges.DanglingEvidenceCount(ctx)
	if err != nil {
		return err
	}
	if evDangling > 0 {
		return fmt.Errorf("%w: %d edges cite missing evidence notes", ErrCheckFailed, evDangling)
	}
	return nil
}

// purge removes the day's raw artifacts. Files go first; the DB rows and the
// audit row commit together last, so the log row proves the rows are gone.
func (j *Job) purge(ctx context.Context, day string, dayStart int64) error {
	logger := contextutil.LoggerFromContext(ctx)

	shots, err := j.shots.ListDay(ctx, day)
	if err != nil {
		return err
	}
	buffers, err := j.buffers.ListDay(ctx, day)
	if err != nil {
		return err
	}

	for _, s := range shots {
		if err := removeIfPresent(s.Path); err != nil {
			return fmt.Errorf("failed to remove screenshot %s: %w", s.ID, err)
		}
	}
	for _, b := range buffers {
		if err := removeIfPresent(b.Path); err != nil {
			return fmt.Errorf("failed to remove text buffer %s: %w", b.ID, err)
		}
	}
	// Day directories are now empty; leftover unknowns keep them alive.
	_ = os.Remove(filepath.Join(j.cfg.CacheDir, "screenshots", day))
	_ = os.Remove(filepath.Join(j.cfg.CacheDir, "text_buffers", day))

	tx, err := j.deletions.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deletedShots, err := j.shots.DeleteDay(ctx, tx, day)
	if err != nil {
		return err
	}
	deletedBuffers, err := j.buffers.DeleteDay(ctx, tx, day)
	if err != nil {
		return err
	}
	ocrCount := 0
	for _, b := range buffers {
		if b.SourceType == storage.SourceOCR {
			ocrCount++
		}
	}
	if err := j.deletions.InsertTx(ctx, tx, &storage.DeletionRecord{
		Day:              day,
		Screenshots:      deletedShots,
		TextBuffers:      deletedBuffers,
		OCRIntermediates: ocrCount,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletion: %w", err)
	}

	logger.Info("day purged", "day", day,
		"screenshots", deletedShots, "text_buffers", deletedBuffers)
	return nil
}

func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
