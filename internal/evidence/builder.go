package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"screentrace/internal/capture"
	"screentrace/internal/storage"
)

// BuilderConfig bounds the builder's resource use. All budgets are enforced
// before work is enqueued, not after.
type BuilderConfig struct {
	CacheDir         string
	Workers          int
	MaxTokensPerBuf  int
	MaxTokensPerHour int
	OCRMinInterval   time.Duration
	Timezone         *time.Location
}

// Builder turns document-context observations into transient text buffers.
// It implements capture.DocumentSink; Observe never blocks the capture tick,
// extraction happens on a bounded worker pool.
type Builder struct {
	cfg        BuilderConfig
	classifier Classifier
	ocr        OCR
	buffers    *storage.BufferRepo
	logger     *slog.Logger

	work chan capture.Observation
	wg   sync.WaitGroup

	mu         sync.Mutex
	lastOCR    time.Time
	seenDirect map[string]struct{} // doc paths already extracted this session

	now func() time.Time
}

// NewBuilder creates an evidence builder. Run must be called before the
// builder accepts observations.
func NewBuilder(cfg BuilderConfig, classifier Classifier, ocr OCR, buffers *storage.BufferRepo) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &Builder{
		cfg:        cfg,
		classifier: classifier,
		ocr:        ocr,
		buffers:    buffers,
		logger:     slog.Default(),
		work:       make(chan capture.Observation, cfg.Workers*4),
		seenDirect: make(map[string]struct{}),
		now:        time.Now,
	}
}

// Run starts the worker pool and blocks until the context is cancelled and
// all in-flight extractions have drained.
func (b *Builder) Run(ctx context.Context) error {
	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case obs := <-b.work:
					b.process(ctx, obs)
				}
			}
		}()
	}
	<-ctx.Done()
	b.wg.Wait()
	return ctx.Err()
}

// Observe implements capture.DocumentSink. Non-document contexts and
// over-budget windows are dropped here so the queue only ever holds work
// that will run.
func (b *Builder) Observe(ctx context.Context, obs capture.Observation) {
	if !b.classifier.IsDocumentContext(obs.Foreground, obs.DwellSeconds) {
		return
	}

	method := ChooseMethod(obs.Foreground.DocPath, obs.ScreenshotID != "")
	switch method {
	case NoExtract:
		return
	case DirectExtract:
		b.mu.Lock()
		if _, done := b.seenDirect[obs.Foreground.DocPath]; done {
			b.mu.Unlock()
			return
		}
		b.seenDirect[obs.Foreground.DocPath] = struct{}{}
		b.mu.Unlock()
	case OcrExtract:
		b.mu.Lock()
		if b.now().Sub(b.lastOCR) < b.cfg.OCRMinInterval {
			b.mu.Unlock()
			return
		}
		b.lastOCR = b.now()
		b.mu.Unlock()
	}

	if !b.hourBudgetAllows(ctx, obs.TS) {
		return
	}

	select {
	case b.work <- obs:
	default:
		// Queue full; this sighting is lost, the next one will try again.
		b.logger.Debug("evidence queue full, dropping observation",
			"app", obs.Foreground.AppID, "ts", obs.TS)
	}
}

func (b *Builder) hourBudgetAllows(ctx context.Context, ts int64) bool {
	hourStart := ts - ts%3600
	used, err := b.buffers.TokensInWindow(ctx, hourStart, hourStart+3600)
	if err != nil {
		b.logger.Warn("failed to check hour token budget", "error", err)
		return false
	}
	return used < b.cfg.MaxTokensPerHour
}

func (b *Builder) process(ctx context.Context, obs capture.Observation) {
	method := ChooseMethod(obs.Foreground.DocPath, obs.ScreenshotID != "")

	var (
		text       string
		sourceType string
		sourceRef  string
		err        error
	)
	switch method {
	case DirectExtract:
		sourceType = storage.SourcePDF
		sourceRef = obs.Foreground.DocPath
		text, err = ExtractDirect(obs.Foreground.DocPath, b.cfg.MaxTokensPerBuf)
	case OcrExtract:
		sourceType = storage.SourceOCR
		sourceRef = obs.ScreenshotID
		text, err = b.ocr.Recognize(ctx, obs.Path)
		if err == nil {
			text = TruncateTokens(text, b.cfg.MaxTokensPerBuf)
		}
	default:
		return
	}
	if err != nil {
		b.logger.Warn("evidence extraction failed",
			"method", method.String(), "ref", sourceRef, "error", err)
		return
	}
	if len(text) == 0 {
		return
	}

	if err := b.persist(ctx, obs.TS, sourceType, sourceRef, text); err != nil {
		b.logger.Warn("failed to persist text buffer", "error", err)
	}
}

func (b *Builder) persist(ctx context.Context, ts int64, sourceType, sourceRef, text string) error {
	day := time.Unix(ts, 0).In(b.cfg.Timezone).Format("20060102")
	id := uuid.New().String()
	path := filepath.Join(b.cfg.CacheDir, "text_buffers", day, id+".zst")

	if err := WriteCompressed(path, text); err != nil {
		return fmt.Errorf("failed to write buffer: %w", err)
	}

	buf := &storage.TextBuffer{
		ID:         id,
		SourceType: sourceType,
		SourceRef:  sourceRef,
		Day:        day,
		Path:       path,
		TokenCount: EstimateTokens(text),
		CapturedTS: ts,
	}
	if err := b.buffers.Insert(ctx, buf); err != nil {
		return fmt.Errorf("failed to insert buffer row: %w", err)
	}
	return nil
}
