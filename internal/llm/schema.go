package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Schema versions. A payload carries its version so later readers can tell
// which contract it was produced under.
const (
	HourSchemaVersion = "hour.v1"
	DaySchemaVersion  = "day.v1"
)

// Model-proposed edge types. Deterministic types (USED_APP, VISITED_DOMAIN,
// LISTENED_TO, STUDIED_WHILE) are derived from event data and never accepted
// from the model.
var proposedEdgeTypes = map[string]struct{}{
	"ABOUT_TOPIC":      {},
	"WATCHED":          {},
	"DOC_REFERENCE":    {},
	"CO_OCCURRED_WITH": {},
}

// EntityMention is one extracted entity with the model's confidence.
type EntityMention struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// ActivityItem is one activity segment inside the summarized window.
type ActivityItem struct {
	Label   string `json:"label"`
	AppName string `json:"app_name"`
	StartTS int64  `json:"start_ts"`
	EndTS   int64  `json:"end_ts"`
}

// MediaItem is one piece of media consumed during the window.
type MediaItem struct {
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// HourSummaryV1 is the hour.v1 structured-output contract.
type HourSummaryV1 struct {
	SchemaVersion string          `json:"schema_version"`
	Summary       string          `json:"summary"`
	Activities    []ActivityItem  `json:"activities"`
	Topics        []string        `json:"topics"`
	Media         []MediaItem     `json:"media"`
	CoActivities  []string        `json:"co_activities"`
	Entities      []EntityMention `json:"entities"`
}

// ProposedEdge is one model-proposed relationship in the daily synthesis.
// From and To are entity names; the daily job resolves them to ids.
type ProposedEdge struct {
	From            string   `json:"from"`
	To              string   `json:"to"`
	EdgeType        string   `json:"edge_type"`
	Weight          float64  `json:"weight"`
	EvidenceNoteIDs []string `json:"evidence_note_ids"`
}

// DaySynthesisV1 is the day.v1 structured-output contract.
type DaySynthesisV1 struct {
	SchemaVersion string          `json:"schema_version"`
	Summary       string          `json:"summary"`
	Highlights    []string        `json:"highlights"`
	Entities      []EntityMention `json:"entities"`
	ProposedEdges []ProposedEdge  `json:"proposed_edges"`
}

// ValidateHourSummary strictly decodes raw against hour.v1. Unknown fields,
// a wrong schema_version, or out-of-range values are rejected with
// ErrInvalidOutput.
func ValidateHourSummary(raw []byte) (*HourSummaryV1, error) {
	var s HourSummaryV1
	if err := strictDecode(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if s.SchemaVersion != HourSchemaVersion {
		return nil, fmt.Errorf("%w: schema_version %q, want %q", ErrInvalidOutput, s.SchemaVersion, HourSchemaVersion)
	}
	for i, e := range s.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entity %d has empty name", ErrInvalidOutput, i)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("%w: entity %q confidence %v out of [0,1]", ErrInvalidOutput, e.Name, e.Confidence)
		}
	}
	for i, a := range s.Activities {
		if a.EndTS < a.StartTS {
			return nil, fmt.Errorf("%w: activity %d ends before it starts", ErrInvalidOutput, i)
		}
	}
	return &s, nil
}

// ValidateDaySynthesis strictly decodes raw against day.v1.
func ValidateDaySynthesis(raw []byte) (*DaySynthesisV1, error) {
	var s DaySynthesisV1
	if err := strictDecode(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if s.SchemaVersion != DaySchemaVersion {
		return nil, fmt.Errorf("%w: schema_version %q, want %q", ErrInvalidOutput, s.SchemaVersion, DaySchemaVersion)
	}
	for i, e := range s.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entity %d has empty name", ErrInvalidOutput, i)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("%w: entity %q confidence %v out of [0,1]", ErrInvalidOutput, e.Name, e.Confidence)
		}
	}
	for i, p := range s.ProposedEdges {
		if p.From == "" || p.To == "" {
			return nil, fmt.Errorf("%w: proposed edge %d has empty endpoint", ErrInvalidOutput, i)
		}
		if _, ok := proposedEdgeTypes[p.EdgeType]; !ok {
			return nil, fmt.Errorf("%w: proposed edge %d has type %q outside the model-proposed set", ErrInvalidOutput, i, p.EdgeType)
		}
		if p.Weight < 0 {
			return nil, fmt.Errorf("%w: proposed edge %d has negative weight", ErrInvalidOutput, i)
		}
	}
	return &s, nil
}

func strictDecode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// Trailing content after the object is as malformed as a bad field.
	if dec.More() {
		return fmt.Errorf("trailing content after JSON object")
	}
	return nil
}

// hourJSONSchema and dayJSONSchema are the response_format schemas sent with
// each structured-output request.
const hourJSONSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["schema_version", "summary", "activities", "topics", "media", "co_activities", "entities"],
  "properties": {
    "schema_version": {"type": "string", "const": "hour.v1"},
    "summary": {"type": "string"},
    "activities": {"type": "array", "items": {
      "type": "object", "additionalProperties": false,
      "required": ["label", "app_name", "start_ts", "end_ts"],
      "properties": {
        "label": {"type": "string"},
        "app_name": {"type": "string"},
        "start_ts": {"type": "integer"},
        "end_ts": {"type": "integer"}
      }}},
    "topics": {"type": "array", "items": {"type": "string"}},
    "media": {"type": "array", "items": {
      "type": "object", "additionalProperties": false,
      "required": ["title", "kind"],
      "properties": {"title": {"type": "string"}, "kind": {"type": "string"}}}},
    "co_activities": {"type": "array", "items": {"type": "string"}},
    "entities": {"type": "array", "items": {
      "type": "object", "additionalProperties": false,
      "required": ["name", "type", "confidence"],
      "properties": {
        "name": {"type": "string"},
        "type": {"type": "string"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }}}
  }
}`

const dayJSONSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["schema_version", "summary", "highlights", "entities", "proposed_edges"],
  "properties": {
    "schema_version": {"type": "string", "const": "day.v1"},
    "summary": {"type": "string"},
    "highlights": {"type": "array", "items": {"type": "string"}},
    "entities": {"type": "array", "items": {
      "type": "object", "additionalProperties": false,
      "required": ["name", "type", "confidence"],
      "properties": {
        "name": {"type": "string"},
        "type": {"type": "string"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }}},
    "proposed_edges": {"type": "array", "items": {
      "type": "object", "additionalProperties": false,
      "required": ["from", "to", "edge_type", "weight", "evidence_note_ids"],
      "properties": {
        "from": {"type": "string"},
        "to": {"type": "string"},
        "edge_type": {"type": "string", "enum": ["ABOUT_TOPIC", "WATCHED", "DOC_REFERENCE", "CO_OCCURRED_WITH"]},
        "weight": {"type": "number", "minimum": 0},
        "evidence_note_ids": {"type": "array", "items": {"type": "string"}}
      }}}
  }
}`
