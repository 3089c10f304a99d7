package capture

import (
	"time"

	"github.com/corona10/goimagehash"
)

// MonitorState is the explicit per-monitor mutable state of the capture
// loop: the fingerprint of the last *persisted* frame and the periodic
// anchor clock. Owned by the Loop; passed around by reference so synthetic
// frame sequences can drive it in tests.
type MonitorState struct {
	MonitorID      int
	LastPersisted  *goimagehash.ImageHash
	LastPersistTS  time.Time
	FramesSeen     int
	FramesPersist  int
	CaptureErrors  int
}

// shouldPersist decides whether this frame is a meaningful change: the diff
// score exceeds the dedup threshold, nothing has been persisted yet, or the
// periodic anchor has elapsed (guaranteeing at least one frame per long
// static period).
func (s *MonitorState) shouldPersist(diff int, threshold int, now time.Time, anchor time.Duration) (persist, isAnchor bool) {
	if s.LastPersisted == nil {
		return true, false
	}
	if diff > threshold {
		return true, false
	}
	if anchor > 0 && now.Sub(s.LastPersistTS) >= anchor {
		return true, true
	}
	return false, false
}
