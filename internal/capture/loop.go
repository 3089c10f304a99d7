package capture

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"screentrace/internal/notes"
	"screentrace/internal/storage"
)

// Config holds the capture loop's tunables.
type Config struct {
	Interval       time.Duration // tick period
	DedupThreshold int           // hamming distance above which a frame is persisted
	AnchorInterval time.Duration // max static period without a persisted frame
	CacheDir       string        // root of cache/{screenshots,...}
	Timezone       *time.Location
}

// Loop runs per-monitor frame sampling with perceptual dedup and tracks
// foreground spans as events. It never blocks on job execution; a single
// capture failure is logged and skipped.
type Loop struct {
	cfg        Config
	frames     FrameSource
	foreground ForegroundSource
	sink       DocumentSink

	screenshots *storage.ScreenshotRepo
	events      *storage.EventRepo

	states map[int]*MonitorState

	open      *storage.Event
	openSince time.Time
	lastFg    Foreground

	// lastLocation and lastPlaying are written by the poller goroutines and
	// read on the tick, so they live behind the mutex.
	mu           sync.Mutex
	lastLocation string
	lastPlaying  string

	now    func() time.Time
	logger *slog.Logger
}

// NewLoop creates a capture loop. sink may be nil when no evidence builder
// is attached.
func NewLoop(cfg Config, frames FrameSource, foreground ForegroundSource, sink DocumentSink,
	screenshots *storage.ScreenshotRepo, events *storage.EventRepo) *Loop {
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &Loop{
		cfg:         cfg,
		frames:      frames,
		foreground:  foreground,
		sink:        sink,
		screenshots: screenshots,
		events:      events,
		states:      make(map[int]*MonitorState),
		now:         time.Now,
		logger:      slog.Default(),
	}
}

// Run ticks until the context is cancelled, then seals the open event.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick samples every monitor once and advances the event span. Exported so
// tests can drive the loop with synthetic clocks and frame sequences.
func (l *Loop) Tick(ctx context.Context) {
	now := l.now()

	fg, err := l.foreground.Current(ctx)
	if err != nil {
		l.logger.Warn("foreground query failed", "error", err)
		fg = l.lastFg
	}
	l.advanceEvent(ctx, fg, now)

	var persistedID, persistedPath string
	for _, monitorID := range l.frames.Monitors() {
		id, path := l.captureMonitor(ctx, monitorID, now)
		if id != "" && monitorID == fg.MonitorID {
			persistedID, persistedPath = id, path
		}
	}

	// The evidence builder owns the trigger logic; the loop only reports.
	if l.sink != nil {
		l.sink.Observe(ctx, Observation{
			Foreground:   fg,
			ScreenshotID: persistedID,
			Path:         persistedPath,
			TS:           now.Unix(),
			DwellSeconds: int64(now.Sub(l.openSince).Seconds()),
		})
	}
}

// SetNowPlaying updates the media context recorded on the open event. Called
// by the now-playing poller.
func (l *Loop) SetNowPlaying(s string) {
	l.mu.Lock()
	l.lastPlaying = s
	l.mu.Unlock()
}

// SetLocation updates the location recorded on the open event. Called by the
// location poller.
func (l *Loop) SetLocation(s string) {
	l.mu.Lock()
	l.lastLocation = s
	l.mu.Unlock()
}

// pollerContext snapshots the location and now-playing state for one tick.
func (l *Loop) pollerContext() (location, playing string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLocation, l.lastPlaying
}

// captureMonitor samples one monitor; returns the persisted screenshot id
// and path, or empty strings when the frame deduplicated away.
func (l *Loop) captureMonitor(ctx context.Context, monitorID int, now time.Time) (string, string) {
	state, ok := l.states[monitorID]
	if !ok {
		state = &MonitorState{MonitorID: monitorID}
		l.states[monitorID] = state
	}
	state.FramesSeen++

	frame, err := l.frames.Capture(ctx, monitorID)
	if err != nil {
		state.CaptureErrors++
		l.logger.Warn("frame capture failed", "monitor", monitorID, "error", err)
		return "", ""
	}

	frame = downscale(frame)
	hash, err := fingerprint(frame)
	if err != nil {
		state.CaptureErrors++
		l.logger.Warn("fingerprint failed", "monitor", monitorID, "error", err)
		return "", ""
	}

	diff := 0
	if state.LastPersisted != nil {
		diff, err = diffScore(hash, state.LastPersisted)
		if err != nil {
			l.logger.Warn("diff score failed", "monitor", monitorID, "error", err)
			return "", ""
		}
	}

	persist, isAnchor := state.shouldPersist(diff, l.cfg.DedupThreshold, now, l.cfg.AnchorInterval)
	if !persist {
		return "", ""
	}

	localNow := now.In(l.cfg.Timezone)
	day := notes.DayKey(localNow)
	id := uuid.New().String()
	path := filepath.Join(l.cfg.CacheDir, "screenshots", day, id+".png")

	if err := writePNG(path, frame); err != nil {
		l.logger.Warn("screenshot write failed", "monitor", monitorID, "error", err)
		return "", ""
	}

	shot := &storage.Screenshot{
		ID:          id,
		MonitorID:   monitorID,
		CapturedTS:  now.Unix(),
		Day:         day,
		Path:        path,
		Fingerprint: hash.GetHash(),
		DiffScore:   diff,
		IsAnchor:    isAnchor,
	}
	if err := l.screenshots.Insert(ctx, shot); err != nil {
		l.logger.Warn("screenshot insert failed", "monitor", monitorID, "error", err)
		_ = os.Remove(path)
		return "", ""
	}

	state.LastPersisted = hash
	state.LastPersistTS = now
	state.FramesPersist++
	return id, path
}

// advanceEvent extends the open event with fresh metadata, sealing and
// reopening it on any app/window/monitor transition.
func (l *Loop) advanceEvent(ctx context.Context, fg Foreground, now time.Time) {
	location, playing := l.pollerContext()
	transition := l.open == nil ||
		fg.AppID != l.lastFg.AppID ||
		fg.WindowTitle != l.lastFg.WindowTitle ||
		fg.MonitorID != l.lastFg.MonitorID

	if transition {
		if l.open != nil {
			if err := l.events.Seal(ctx, l.open.ID, now.Unix()); err != nil {
				l.logger.Warn("event seal failed", "event", l.open.ID, "error", err)
			}
		}
		e := &storage.Event{
			MonitorID:   fg.MonitorID,
			AppID:       fg.AppID,
			AppName:     fg.AppName,
			WindowTitle: fg.WindowTitle,
			URL:         fg.URL,
			PageTitle:   fg.PageTitle,
			DocPath:     fg.DocPath,
			Location:    location,
			NowPlaying:  playing,
		}
		opened, err := l.events.Open(ctx, e, now.Unix())
		if err != nil {
			l.logger.Warn("event open failed", "error", err)
			return
		}
		l.open = opened
		l.openSince = now
		l.lastFg = fg
		return
	}

	l.open.URL = fg.URL
	l.open.PageTitle = fg.PageTitle
	l.open.DocPath = fg.DocPath
	l.open.Location = location
	l.open.NowPlaying = playing
	if err := l.events.Extend(ctx, l.open, now.Unix()); err != nil {
		l.logger.Warn("event extend failed", "event", l.open.ID, "error", err)
	}
	l.lastFg = fg
}

// shutdown seals the open event so no span is left dangling on exit.
func (l *Loop) shutdown() {
	if l.open == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.events.Seal(ctx, l.open.ID, l.now().Unix()); err != nil {
		l.logger.Warn("event seal on shutdown failed", "event", l.open.ID, "error", err)
	}
	l.open = nil
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create screenshot file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return nil
}
