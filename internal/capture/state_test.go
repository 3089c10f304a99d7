package capture

import (
	"image"
	"testing"
	"time"

	"github.com/corona10/goimagehash"
)

func testHash(t *testing.T) *goimagehash.ImageHash {
	t.Helper()
	hash, err := goimagehash.DifferenceHash(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	if err != nil {
		t.Fatalf("DifferenceHash() error = %v", err)
	}
	return hash
}

func TestMonitorStateShouldPersist(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		hasPrevious bool
		lastPersist time.Time
		diff        int
		threshold   int
		now         time.Time
		anchor      time.Duration
		wantPersist bool
		wantAnchor  bool
	}{
		{
			name:        "first frame always persists",
			hasPrevious: false,
			diff:        0,
			threshold:   10,
			now:         base,
			anchor:      5 * time.Minute,
			wantPersist: true,
			wantAnchor:  false,
		},
		{
			name:        "diff above threshold persists",
			hasPrevious: true,
			lastPersist: base,
			diff:        11,
			threshold:   10,
			now:         base.Add(time.Second),
			anchor:      5 * time.Minute,
			wantPersist: true,
			wantAnchor:  false,
		},
		{
			name:        "diff at threshold deduplicates",
			hasPrevious: true,
			lastPersist: base,
			diff:        10,
			threshold:   10,
			now:         base.Add(time.Second),
			anchor:      5 * time.Minute,
			wantPersist: false,
		},
		{
			name:        "anchor elapsed persists static frame",
			hasPrevious: true,
			lastPersist: base,
			diff:        0,
			threshold:   10,
			now:         base.Add(5 * time.Minute),
			anchor:      5 * time.Minute,
			wantPersist: true,
			wantAnchor:  true,
		},
		{
			name:        "static frame before anchor deduplicates",
			hasPrevious: true,
			lastPersist: base,
			diff:        0,
			threshold:   10,
			now:         base.Add(4 * time.Minute),
			anchor:      5 * time.Minute,
			wantPersist: false,
		},
		{
			name:        "zero anchor interval disables anchors",
			hasPrevious: true,
			lastPersist: base,
			diff:        0,
			threshold:   10,
			now:         base.Add(24 * time.Hour),
			anchor:      0,
			wantPersist: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &MonitorState{MonitorID: 1, LastPersistTS: tt.lastPersist}
			if tt.hasPrevious {
				state.LastPersisted = testHash(t)
			}

			persist, isAnchor := state.shouldPersist(tt.diff, tt.threshold, tt.now, tt.anchor)
			if persist != tt.wantPersist {
				t.Errorf("persist = %v, want %v", persist, tt.wantPersist)
			}
			if isAnchor != tt.wantAnchor {
				t.Errorf("isAnchor = %v, want %v", isAnchor, tt.wantAnchor)
			}
		})
	}
}
