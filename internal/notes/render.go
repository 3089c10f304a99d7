package notes

import (
	"fmt"
	"strings"
	"time"

	"screentrace/internal/llm"
)

// RenderHour renders the markdown view of an hourly payload. The markdown is
// a pure function of the payload and window, so re-rendering after a re-run
// is deterministic.
func RenderHour(s *llm.HourSummaryV1, start, end time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Hour %s — %s\n\n", start.Format("2006-01-02 15:04"), end.Format("15:04"))
	b.WriteString(s.Summary)
	b.WriteString("\n")

	if len(s.Activities) > 0 {
		b.WriteString("\n## Activities\n\n")
		for _, a := range s.Activities {
			fmt.Fprintf(&b, "- %s — %s (%s to %s)\n", a.Label, a.AppName,
				time.Unix(a.StartTS, 0).In(start.Location()).Format("15:04"),
				time.Unix(a.EndTS, 0).In(start.Location()).Format("15:04"))
		}
	}
	if len(s.Topics) > 0 {
		b.WriteString("\n## Topics\n\n")
		for _, t := range s.Topics {
			b.WriteString("- " + t + "\n")
		}
	}
	if len(s.Media) > 0 {
		b.WriteString("\n## Media\n\n")
		for _, m := range s.Media {
			fmt.Fprintf(&b, "- %s (%s)\n", m.Title, m.Kind)
		}
	}
	if len(s.CoActivities) > 0 {
		b.WriteString("\n## Co-activities\n\n")
		for _, c := range s.CoActivities {
			b.WriteString("- " + c + "\n")
		}
	}
	if len(s.Entities) > 0 {
		b.WriteString("\n## Entities\n\n")
		for _, e := range s.Entities {
			fmt.Fprintf(&b, "- %s (%s, %.2f)\n", e.Name, e.Type, e.Confidence)
		}
	}
	return b.String()
}

// RenderDay renders the markdown view of a daily synthesis payload.
func RenderDay(s *llm.DaySynthesisV1, day time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Day %s\n\n", day.Format("2006-01-02"))
	b.WriteString(s.Summary)
	b.WriteString("\n")

	if len(s.Highlights) > 0 {
		b.WriteString("\n## Highlights\n\n")
		for _, h := range s.Highlights {
			b.WriteString("- " + h + "\n")
		}
	}
	if len(s.Entities) > 0 {
		b.WriteString("\n## Entities\n\n")
		for _, e := range s.Entities {
			fmt.Fprintf(&b, "- %s (%s, %.2f)\n", e.Name, e.Type, e.Confidence)
		}
	}
	return b.String()
}

// EmbeddingTextHour builds the text embedded for an hourly note: the summary
// plus topics and entity names, which carries more retrieval signal than the
// raw markdown.
func EmbeddingTextHour(s *llm.HourSummaryV1) string {
	parts := []string{s.Summary}
	if len(s.Topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(s.Topics, ", "))
	}
	if len(s.Entities) > 0 {
		names := make([]string, len(s.Entities))
		for i, e := range s.Entities {
			names[i] = e.Name
		}
		parts = append(parts, "Entities: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "\n")
}

// EmbeddingTextDay builds the text embedded for a daily note.
func EmbeddingTextDay(s *llm.DaySynthesisV1) string {
	parts := []string{s.Summary}
	if len(s.Highlights) > 0 {
		parts = append(parts, "Highlights: "+strings.Join(s.Highlights, ", "))
	}
	return strings.Join(parts, "\n")
}
