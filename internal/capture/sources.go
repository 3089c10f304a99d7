package capture

import (
	"context"
	"image"
)

// Foreground is the keystroke-free OS signal describing what is in front of
// the user right now. Supplied by an external collaborator; consumed as-is
// beyond type checking.
type Foreground struct {
	MonitorID   int
	AppID       string
	AppName     string
	WindowTitle string
	URL         string
	PageTitle   string
	DocPath     string
}

// NowPlaying is one media snapshot from the OS media API.
type NowPlaying struct {
	Title  string
	Artist string
	App    string
}

// FrameSource captures raw frames per monitor.
type FrameSource interface {
	// Monitors returns the ids of the monitors currently available.
	Monitors() []int
	// Capture grabs one frame for the given monitor.
	Capture(ctx context.Context, monitorID int) (image.Image, error)
}

// ForegroundSource reports the current foreground app/window metadata.
type ForegroundSource interface {
	Current(ctx context.Context) (Foreground, error)
}

// NowPlayingSource reports the current media item, if any.
type NowPlayingSource interface {
	Current(ctx context.Context) (NowPlaying, bool, error)
}

// LocationSource reports a best-effort location string, if available.
type LocationSource interface {
	Current(ctx context.Context) (string, bool, error)
}

// DocumentSink receives document-context observations from the capture loop.
// Implementations must not block the tick.
type DocumentSink interface {
	Observe(ctx context.Context, obs Observation)
}

// Observation is one document-context sighting handed to the evidence
// builder.
type Observation struct {
	Foreground   Foreground
	ScreenshotID string // set when this tick persisted a frame
	Path         string // screenshot file path, when persisted
	TS           int64
	DwellSeconds int64 // time spent in the current foreground context
}
