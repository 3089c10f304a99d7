package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"screentrace/internal/storage"
)

// fakeFrames serves a programmable image per monitor.
type fakeFrames struct {
	monitors []int
	img      image.Image
}

func (f *fakeFrames) Monitors() []int { return f.monitors }

func (f *fakeFrames) Capture(_ context.Context, _ int) (image.Image, error) {
	return f.img, nil
}

// fakeForeground serves a programmable foreground context.
type fakeForeground struct {
	fg Foreground
}

func (f *fakeForeground) Current(_ context.Context) (Foreground, error) {
	return f.fg, nil
}

// recordingSink collects every observation the loop reports.
type recordingSink struct {
	observations []Observation
}

func (s *recordingSink) Observe(_ context.Context, obs Observation) {
	s.observations = append(s.observations, obs)
}

// horizontalGradient and verticalGradient give strongly different difference
// hashes, so a swap between them always crosses any reasonable threshold.
func horizontalGradient() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: uint8(x * 4)})
		}
	}
	return img
}

func verticalGradient() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: uint8(y * 4)})
		}
	}
	return img
}

func newTestLoop(t *testing.T) (*Loop, *fakeFrames, *fakeForeground, *recordingSink, *storage.ScreenshotRepo, *storage.EventRepo) {
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

	shots := storage.NewScreenshotRepo(db)
	events := storage.NewEventRepo(db)
	frames := &fakeFrames{monitors: []int{1}, img: horizontalGradient()}
	foreground := &fakeForeground{fg: Foreground{MonitorID: 1, AppID: "com.test.editor", AppName: "Editor", WindowTitle: "main.go"}}
	sink := &recordingSink{}

	loop := NewLoop(Config{
		Interval:       time.Second,
		DedupThreshold: 4,
		AnchorInterval: 5 * time.Minute,
		CacheDir:       t.TempDir(),
		Timezone:       time.UTC,
	}, frames, foreground, sink, shots, events)

	return loop, frames, foreground, sink, shots, events
}

func TestLoop_StaticScreenPersistsOnce(t *testing.T) {
	loop, _, _, _, shots, _ := newTestLoop(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		loop.now = func() time.Time { return tick }
		loop.Tick(ctx)
	}

	day := base.Format("20060102")
	n, err := shots.CountDay(ctx, day)
	if err != nil {
		t.Fatalf("CountDay() error = %v", err)
	}
	if n != 1 {
		t.Errorf("static screen persisted %d frames, want 1", n)
	}
	if loop.states[1].FramesSeen != 5 {
		t.Errorf("FramesSeen = %d, want 5", loop.states[1].FramesSeen)
	}
}

func TestLoop_ContentChangePersists(t *testing.T) {
	loop, frames, _, _, shots, _ := newTestLoop(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return base }
	loop.Tick(ctx)

	frames.img = verticalGradient()
	next := base.Add(time.Second)
	loop.now = func() time.Time { return next }
	loop.Tick(ctx)

	n, err := shots.CountDay(ctx, base.Format("20060102"))
	if err != nil {
		t.Fatalf("CountDay() error = %v", err)
	}
	if n != 2 {
		t.Errorf("content change persisted %d frames, want 2", n)
	}
}

func TestLoop_AnchorPersistsDuringStaticPeriod(t *testing.T) {
	loop, _, _, _, shots, _ := newTestLoop(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return base }
	loop.Tick(ctx)

	// Same frame, but past the anchor interval.
	later := base.Add(6 * time.Minute)
	loop.now = func() time.Time { return later }
	loop.Tick(ctx)

	list, err := shots.ListDay(ctx, base.Format("20060102"))
	if err != nil {
		t.Fatalf("ListDay() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d frames, want 2", len(list))
	}
	if !list[1].IsAnchor {
		t.Error("second frame is not marked as anchor")
	}
	if list[0].IsAnchor {
		t.Error("first frame of a monitor must not be an anchor")
	}
}

func TestLoop_TransitionSealsEvent(t *testing.T) {
	loop, _, foreground, _, _, events := newTestLoop(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return base }
	loop.Tick(ctx)

	// Window change is a transition; URL change alone is not.
	foreground.fg.WindowTitle = "other.go"
	next := base.Add(2 * time.Second)
	loop.now = func() time.Time { return next }
	loop.Tick(ctx)

	list, err := events.ListWindow(ctx, base.Unix()-1, base.Unix()+3600)
	if err != nil {
		t.Fatalf("ListWindow() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d events, want 2", len(list))
	}
	if !list[0].Sealed {
		t.Error("first event not sealed after transition")
	}
	if list[0].EndTS != next.Unix() {
		t.Errorf("sealed event end_ts = %d, want %d", list[0].EndTS, next.Unix())
	}
	if list[1].Sealed {
		t.Error("open event is sealed")
	}
	if list[1].WindowTitle != "other.go" {
		t.Errorf("open event window = %q, want other.go", list[1].WindowTitle)
	}
}

func TestLoop_MetadataRefreshIsNotTransition(t *testing.T) {
	loop, _, foreground, _, _, events := newTestLoop(t)
	ctx := context.Background()

	foreground.fg = Foreground{MonitorID: 1, AppID: "com.test.browser", AppName: "Browser", WindowTitle: "Docs", URL: "https://a.test/1"}
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return base }
	loop.Tick(ctx)

	foreground.fg.URL = "https://a.test/2"
	next := base.Add(time.Second)
	loop.now = func() time.Time { return next }
	loop.Tick(ctx)

	list, err := events.ListWindow(ctx, base.Unix()-1, base.Unix()+3600)
	if err != nil {
		t.Fatalf("ListWindow() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d events, want 1 extended event", len(list))
	}
	if list[0].URL != "https://a.test/2" {
		t.Errorf("event URL = %q, want the refreshed one", list[0].URL)
	}
	if list[0].EndTS != next.Unix() {
		t.Errorf("event end_ts = %d, want %d", list[0].EndTS, next.Unix())
	}
}

func TestLoop_PollerUpdatesAreSafeDuringTicks(t *testing.T) {
	loop, _, _, _, _, _ := newTestLoop(t)
	ctx := context.Background()

	// Pollers run on their own goroutines and write location/now-playing
	// while the tick reads them. Under -race this fails on any unguarded
	// access.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			loop.SetLocation("office")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			loop.SetNowPlaying("Track A — Artist")
		}
	}()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		loop.now = func() time.Time { return tick }
		loop.Tick(ctx)
	}
	wg.Wait()

	// A final snapshot lands on the open event.
	loop.SetLocation("desk")
	last := base.Add(time.Minute)
	loop.now = func() time.Time { return last }
	loop.Tick(ctx)

	if loop.open == nil || loop.open.Location != "desk" {
		t.Errorf("open event location = %+v, want desk", loop.open)
	}
}

func TestLoop_SinkSeesEveryTick(t *testing.T) {
	loop, _, _, sink, _, _ := newTestLoop(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		loop.now = func() time.Time { return tick }
		loop.Tick(ctx)
	}

	if len(sink.observations) != 3 {
		t.Fatalf("sink saw %d observations, want 3", len(sink.observations))
	}
	// Only the first tick persisted a frame; later observations carry no id.
	if sink.observations[0].ScreenshotID == "" {
		t.Error("first observation missing screenshot id")
	}
	if sink.observations[1].ScreenshotID != "" {
		t.Error("deduplicated tick still reported a screenshot id")
	}
	if sink.observations[2].DwellSeconds != 2 {
		t.Errorf("dwell = %d, want 2", sink.observations[2].DwellSeconds)
	}
}
