package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls an OpenAI-compatible chat completions API with structured
// output (response_format json_schema). It implements Model.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	client  *http.Client
}

// NewClient creates a new structured-output model client. Every call carries
// the timeout; on expiry the error surfaces as a retryable failure, never a
// hang.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// ChatResponse represents the response from the chat completions API.
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// SummarizeHour produces the validated hourly summary for one window.
func (c *Client) SummarizeHour(ctx context.Context, input HourInput) (*HourSummaryV1, error) {
	raw, err := c.chatJSON(ctx, hourSystemPrompt, renderHourPrompt(input), "hour_summary", hourJSONSchema)
	if err != nil {
		return nil, err
	}
	return ValidateHourSummary(raw)
}

// SynthesizeDay produces the validated full-day synthesis.
func (c *Client) SynthesizeDay(ctx context.Context, input DayInput) (*DaySynthesisV1, error) {
	raw, err := c.chatJSON(ctx, daySystemPrompt, renderDayPrompt(input), "day_synthesis", dayJSONSchema)
	if err != nil {
		return nil, err
	}
	return ValidateDaySynthesis(raw)
}

// chatJSON sends one structured-output completion request and returns the
// raw message content for validation by the caller.
func (c *Client) chatJSON(ctx context.Context, system, user, schemaName, schema string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)

	payload := ChatRequest{
		Model: c.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   schemaName,
				Strict: true,
				Schema: json.RawMessage(schema),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return json.RawMessage(chatResp.Choices[0].Message.Content), nil
}

const hourSystemPrompt = `You summarize one hour of a user's on-screen activity.
You are given an app/window timeline, selected keyframe descriptors, text
snippets extracted from documents, and now-playing/location context. Respond
only with JSON conforming to the hour.v1 schema. Do not invent activities
that are not supported by the evidence.`

const daySystemPrompt = `You revise one day of hourly activity summaries with
full-day context. Identify cross-hour themes and relationships between
entities. Propose edges only of types ABOUT_TOPIC, WATCHED, DOC_REFERENCE and
CO_OCCURRED_WITH, each backed by the note ids that evidence it. Respond only
with JSON conforming to the day.v1 schema.`

func renderHourPrompt(in HourInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s to %s\n\n",
		time.Unix(in.StartTS, 0).UTC().Format(time.RFC3339),
		time.Unix(in.EndTS, 0).UTC().Format(time.RFC3339))
	b.WriteString("## Timeline\n")
	b.WriteString(in.Timeline)
	if len(in.Keyframes) > 0 {
		b.WriteString("\n## Keyframes\n")
		for _, k := range in.Keyframes {
			b.WriteString("- " + k + "\n")
		}
	}
	if len(in.Snippets) > 0 {
		b.WriteString("\n## Document snippets\n")
		for i, s := range in.Snippets {
			fmt.Fprintf(&b, "### Snippet %d\n%s\n", i+1, s)
		}
	}
	if in.NowPlaying != "" {
		b.WriteString("\n## Now playing\n" + in.NowPlaying + "\n")
	}
	if in.Location != "" {
		b.WriteString("\n## Location\n" + in.Location + "\n")
	}
	return b.String()
}

func renderDayPrompt(in DayInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day: %s to %s\n",
		time.Unix(in.StartTS, 0).UTC().Format(time.RFC3339),
		time.Unix(in.EndTS, 0).UTC().Format(time.RFC3339))
	for _, n := range in.Notes {
		fmt.Fprintf(&b, "\n## Note %s (%s - %s)\n%s\n",
			n.NoteID,
			time.Unix(n.StartTS, 0).UTC().Format("15:04"),
			time.Unix(n.EndTS, 0).UTC().Format("15:04"),
			n.Payload)
	}
	return b.String()
}
