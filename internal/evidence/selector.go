package evidence

import (
	"sort"

	"screentrace/internal/storage"
)

// SelectionConfig bounds what one hour's selection may carry into the
// summarization prompt.
type SelectionConfig struct {
	MaxKeyframes     int
	MaxSnippetTokens int
}

// BufferText pairs a buffer row with its decompressed text. Decompression is
// the caller's job so Select stays pure.
type BufferText struct {
	Buffer storage.TextBuffer
	Text   string
}

// Keyframe is one selected frame with the reason it was kept.
type Keyframe struct {
	Screenshot storage.Screenshot
	Reason     string // transition | diff | anchor
}

// Selection is the evidence chosen for one hour window.
type Selection struct {
	Keyframes []Keyframe
	Snippets  []BufferText
}

// Select picks the evidence for one window. The choice is a pure function of
// its inputs: the same rows in any order always yield the same selection.
//
// Precedence: frames at event transitions first, then the highest-diff
// frames, then periodic anchors, all within cfg.MaxKeyframes. Snippets are
// taken in capture order until cfg.MaxSnippetTokens is spent.
func Select(cfg SelectionConfig, events []storage.Event, shots []storage.Screenshot, buffers []BufferText) Selection {
	var sel Selection

	// Transition timestamps: an event starting mid-window marks a context
	// switch worth keeping a frame for.
	transitions := make(map[int64]bool)
	for _, e := range events {
		transitions[e.StartTS] = true
	}

	picked := make(map[string]bool)
	remaining := cfg.MaxKeyframes

	// Pass 1: transition frames, in time order.
	byTime := append([]storage.Screenshot(nil), shots...)
	sort.Slice(byTime, func(i, j int) bool {
		if byTime[i].CapturedTS != byTime[j].CapturedTS {
			return byTime[i].CapturedTS < byTime[j].CapturedTS
		}
		return byTime[i].ID < byTime[j].ID
	})
	for _, s := range byTime {
		if remaining == 0 {
			break
		}
		if nearTransition(s.CapturedTS, transitions) && !picked[s.ID] {
			picked[s.ID] = true
			sel.Keyframes = append(sel.Keyframes, Keyframe{Screenshot: s, Reason: "transition"})
			remaining--
		}
	}

	// Pass 2: highest-diff frames. Ties break by time then id so the
	// ordering never depends on input order.
	byDiff := append([]storage.Screenshot(nil), shots...)
	sort.Slice(byDiff, func(i, j int) bool {
		if byDiff[i].DiffScore != byDiff[j].DiffScore {
			return byDiff[i].DiffScore > byDiff[j].DiffScore
		}
		if byDiff[i].CapturedTS != byDiff[j].CapturedTS {
			return byDiff[i].CapturedTS < byDiff[j].CapturedTS
		}
		return byDiff[i].ID < byDiff[j].ID
	})
	for _, s := range byDiff {
		if remaining == 0 {
			break
		}
		if s.DiffScore > 0 && !picked[s.ID] {
			picked[s.ID] = true
			sel.Keyframes = append(sel.Keyframes, Keyframe{Screenshot: s, Reason: "diff"})
			remaining--
		}
	}

	// Pass 3: periodic anchors fill whatever budget is left.
	for _, s := range byTime {
		if remaining == 0 {
			break
		}
		if s.IsAnchor && !picked[s.ID] {
			picked[s.ID] = true
			sel.Keyframes = append(sel.Keyframes, Keyframe{Screenshot: s, Reason: "anchor"})
			remaining--
		}
	}

	// Output in capture order regardless of which pass chose the frame.
	sort.Slice(sel.Keyframes, func(i, j int) bool {
		a, b := sel.Keyframes[i].Screenshot, sel.Keyframes[j].Screenshot
		if a.CapturedTS != b.CapturedTS {
			return a.CapturedTS < b.CapturedTS
		}
		return a.ID < b.ID
	})

	// Snippets: capture order, token budget.
	byCapture := append([]BufferText(nil), buffers...)
	sort.Slice(byCapture, func(i, j int) bool {
		if byCapture[i].Buffer.CapturedTS != byCapture[j].Buffer.CapturedTS {
			return byCapture[i].Buffer.CapturedTS < byCapture[j].Buffer.CapturedTS
		}
		return byCapture[i].Buffer.ID < byCapture[j].Buffer.ID
	})
	budget := cfg.MaxSnippetTokens
	for _, bt := range byCapture {
		if budget <= 0 {
			break
		}
		tokens := EstimateTokens(bt.Text)
		if tokens > budget {
			bt.Text = TruncateTokens(bt.Text, budget)
			tokens = EstimateTokens(bt.Text)
		}
		if len(bt.Text) == 0 {
			continue
		}
		sel.Snippets = append(sel.Snippets, bt)
		budget -= tokens
	}

	return sel
}

// nearTransition reports whether ts falls within a couple of seconds of a
// recorded event start. Frames and event starts come from the same tick but
// are stamped independently.
func nearTransition(ts int64, transitions map[int64]bool) bool {
	for d := int64(-2); d <= 2; d++ {
		if transitions[ts+d] {
			return true
		}
	}
	return false
}
