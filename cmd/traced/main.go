package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screentrace/internal/capture"
	"screentrace/internal/checkpoint"
	"screentrace/internal/config"
	"screentrace/internal/evidence"
	"screentrace/internal/http"
	"screentrace/internal/llm"
	"screentrace/internal/revise"
	"screentrace/internal/scheduler"
	"screentrace/internal/storage"
	"screentrace/internal/summarize"
	"screentrace/internal/vectorstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	eventRepo := storage.NewEventRepo(db)
	screenshotRepo := storage.NewScreenshotRepo(db)
	bufferRepo := storage.NewBufferRepo(db)
	snapshotRepo := storage.NewSnapshotRepo(db)
	noteRepo := storage.NewNoteRepo(db)
	entityRepo := storage.NewEntityRepo(db)
	noteEntityRepo := storage.NewNoteEntityRepo(db)
	edgeRepo := storage.NewEdgeRepo(db)
	aggregateRepo := storage.NewAggregateRepo(db)
	jobRepo := storage.NewJobRepo(db)
	deletionRepo := storage.NewDeletionLogRepo(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast).
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	model := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.LLMTimeout)

	builder := evidence.NewBuilder(evidence.BuilderConfig{
		CacheDir:         cfg.CacheDir,
		Workers:          cfg.ExtractionWorkers,
		MaxTokensPerBuf:  cfg.MaxTokensPerBuf,
		MaxTokensPerHour: cfg.MaxTokensPerHour,
		OCRMinInterval:   cfg.OCRMinInterval,
		Timezone:         cfg.Timezone,
	}, &evidence.HeuristicClassifier{MinDwellSeconds: 5}, evidence.NewTesseractOCR(cfg.OCRBinary), bufferRepo)
	go runBackground(ctx, "evidence builder", builder.Run)

	// Capture needs the platform helpers; without them the daemon serves
	// jobs and the API over whatever was captured previously.
	if len(cfg.ScreenshotCmd) > 0 && len(cfg.ForegroundCmd) > 0 {
		frames := capture.NewExecFrameSource(cfg.ScreenshotCmd, cfg.Monitors, "")
		foreground := capture.NewExecForegroundSource(cfg.ForegroundCmd)
		loop := capture.NewLoop(capture.Config{
			Interval:       cfg.CaptureInterval,
			DedupThreshold: cfg.DedupThreshold,
			AnchorInterval: cfg.AnchorInterval,
			CacheDir:       cfg.CacheDir,
			Timezone:       cfg.Timezone,
		}, frames, foreground, builder, screenshotRepo, eventRepo)
		go runBackground(ctx, "capture loop", loop.Run)

		if len(cfg.NowPlayingCmd) > 0 {
			poller := capture.NewNowPlayingPoller(capture.NewExecNowPlayingSource(cfg.NowPlayingCmd), snapshotRepo, loop, cfg.NowPlayingPoll)
			go runBackground(ctx, "now-playing poller", poller.Run)
		}
		if len(cfg.LocationCmd) > 0 {
			poller := capture.NewLocationPoller(capture.NewExecLocationSource(cfg.LocationCmd), snapshotRepo, loop, cfg.LocationPoll)
			go runBackground(ctx, "location poller", poller.Run)
		}
		slog.Info("Capture started", "monitors", cfg.Monitors, "interval", cfg.CaptureInterval)
	} else {
		slog.Warn("Capture disabled: CAPTURE_SCREENSHOT_CMD and CAPTURE_FOREGROUND_CMD are not both set")
	}

	hourlyJob := summarize.NewHourlyJob(summarize.Config{
		NotesDir:   cfg.NotesDir,
		Collection: cfg.QdrantCollection,
		Timezone:   cfg.Timezone,
	}, eventRepo, screenshotRepo, bufferRepo, snapshotRepo, noteRepo, entityRepo, noteEntityRepo, model, embedder, vectorStore)

	dailyJob := revise.NewDailyJob(revise.Config{
		NotesDir:   cfg.NotesDir,
		Collection: cfg.QdrantCollection,
		Timezone:   cfg.Timezone,
	}, eventRepo, snapshotRepo, noteRepo, entityRepo, noteEntityRepo, edgeRepo, aggregateRepo, model, embedder, vectorStore)

	cleanupJob := checkpoint.NewJob(checkpoint.Config{
		CacheDir: cfg.CacheDir,
		Timezone: cfg.Timezone,
	}, eventRepo, screenshotRepo, bufferRepo, noteRepo, noteEntityRepo, edgeRepo, jobRepo, deletionRepo)

	backfillJob := summarize.NewBackfillJob(noteRepo, embedder, vectorStore, cfg.QdrantCollection)

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Timezone}, jobRepo, eventRepo)
	sched.Register(storage.JobTypeHourly, hourlyJob)
	sched.Register(storage.JobTypeDaily, dailyJob)
	sched.Register(storage.JobTypeCleanup, cleanupJob)
	sched.Register(storage.JobTypeEmbedding, backfillJob)
	go runBackground(ctx, "scheduler", sched.Run)

	router := http.NewRouter(&http.Deps{
		Notes:       noteRepo,
		Jobs:        jobRepo,
		Deletions:   deletionRepo,
		Scheduler:   sched,
		VectorStore: vectorStore,
		Collection:  cfg.QdrantCollection,
		Timezone:    cfg.Timezone,
	})

	server := &nethttp.Server{Addr: ":" + cfg.APIPort, Handler: router}
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown failed", "error", err)
	}
}

// runBackground runs a context-bound component and logs unexpected exits.
func runBackground(ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("background component stopped", "component", name, "error", err)
	}
}

func logLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
