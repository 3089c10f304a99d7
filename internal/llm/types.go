package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_model.go -package=mocks screentrace/internal/llm Model,Embedder

import (
	"context"
	"errors"
)

// ErrInvalidOutput marks a model response that failed schema validation.
// Jobs retry such a call exactly once; everything else is a transient
// failure handled by the scheduler's backoff.
var ErrInvalidOutput = errors.New("model output failed schema validation")

// Model is the structured-output contract the pipeline requires of the
// external LLM. Implementations must validate before returning; malformed
// output is rejected with ErrInvalidOutput, never coerced.
type Model interface {
	// SummarizeHour produces the validated hourly summary for one window.
	SummarizeHour(ctx context.Context, input HourInput) (*HourSummaryV1, error)
	// SynthesizeDay produces the validated full-day synthesis.
	SynthesizeDay(ctx context.Context, input DayInput) (*DaySynthesisV1, error)
}

// Embedder turns texts into fixed-size vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// HourInput is the curated evidence for one hour window, already rendered
// to text by the evidence selector.
type HourInput struct {
	StartTS    int64
	EndTS      int64
	Timeline   string   // app/window transition timeline
	Keyframes  []string // one descriptor line per selected keyframe
	Snippets   []string // capped text-buffer snippets
	NowPlaying string
	Location   string
}

// NoteDigest is one hourly note as seen by the daily synthesis call.
type NoteDigest struct {
	NoteID  string
	StartTS int64
	EndTS   int64
	Payload string // the hourly json_payload
}

// DayInput is the full-day context for the daily revision call.
type DayInput struct {
	StartTS int64
	EndTS   int64
	Notes   []NoteDigest
}
