package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"screentrace/internal/storage"
)

// NowPlayingPoller records media snapshots on its own cadence, decoupled
// from the frame tick.
type NowPlayingPoller struct {
	source   NowPlayingSource
	repo     *storage.SnapshotRepo
	loop     *Loop
	interval time.Duration
	logger   *slog.Logger

	last string
}

// NewNowPlayingPoller creates a now-playing poller. loop may be nil.
func NewNowPlayingPoller(source NowPlayingSource, repo *storage.SnapshotRepo, loop *Loop, interval time.Duration) *NowPlayingPoller {
	return &NowPlayingPoller{source: source, repo: repo, loop: loop, interval: interval, logger: slog.Default()}
}

// Run polls until the context is cancelled. Only changes are recorded.
func (p *NowPlayingPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *NowPlayingPoller) poll(ctx context.Context) {
	np, ok, err := p.source.Current(ctx)
	if err != nil {
		p.logger.Warn("now-playing poll failed", "error", err)
		return
	}
	if !ok {
		p.last = ""
		if p.loop != nil {
			p.loop.SetNowPlaying("")
		}
		return
	}

	current := fmt.Sprintf("%s — %s", np.Title, np.Artist)
	if current == p.last {
		return
	}
	p.last = current
	if p.loop != nil {
		p.loop.SetNowPlaying(current)
	}

	snap := &storage.NowPlayingSnapshot{
		TS:     time.Now().Unix(),
		Title:  np.Title,
		Artist: np.Artist,
		App:    np.App,
	}
	if err := p.repo.InsertNowPlaying(ctx, snap); err != nil {
		p.logger.Warn("now-playing insert failed", "error", err)
	}
}

// LocationPoller records location snapshots on its own cadence.
type LocationPoller struct {
	source   LocationSource
	repo     *storage.SnapshotRepo
	loop     *Loop
	interval time.Duration
	logger   *slog.Logger

	last string
}

// NewLocationPoller creates a location poller. loop may be nil.
func NewLocationPoller(source LocationSource, repo *storage.SnapshotRepo, loop *Loop, interval time.Duration) *LocationPoller {
	return &LocationPoller{source: source, repo: repo, loop: loop, interval: interval, logger: slog.Default()}
}

// Run polls until the context is cancelled. Only changes are recorded.
func (p *LocationPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *LocationPoller) poll(ctx context.Context) {
	text, ok, err := p.source.Current(ctx)
	if err != nil {
		p.logger.Warn("location poll failed", "error", err)
		return
	}
	if !ok || text == p.last {
		return
	}
	p.last = text
	if p.loop != nil {
		p.loop.SetLocation(text)
	}

	if err := p.repo.InsertLocation(ctx, &storage.LocationSnapshot{TS: time.Now().Unix(), Text: text}); err != nil {
		p.logger.Warn("location insert failed", "error", err)
	}
}
