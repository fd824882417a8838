package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedPayload indicates the summarizer output could not be decoded
	// into a structured summary.
	ErrMalformedPayload = errors.New("summary: malformed payload")
	// ErrMissingTLDR indicates a decoded payload without a usable tl;dr.
	ErrMissingTLDR = errors.New("summary: missing tldr")
)

// Decision is one decision extracted from a meeting.
type Decision struct {
	Decision string  `json:"decision"`
	Owner    *string `json:"owner"`
	Context  string  `json:"context"`
}

// ActionItem is one task extracted from a meeting.
type ActionItem struct {
	Task    string  `json:"task"`
	Owner   *string `json:"owner"`
	DueDate *string `json:"due_date"`
}

// MeetingRequest is a follow-up meeting the summarizer proposes to schedule.
type MeetingRequest struct {
	Title           string `json:"title"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Connection links the current meeting to prior context.
type Connection struct {
	Connection string `json:"connection"`
	Reference  string `json:"reference"`
}

// Summary is the structured output of the opaque summarizer.
type Summary struct {
	TLDR               string           `json:"tldr"`
	ContextConnections []Connection     `json:"context_connections"`
	Decisions          []Decision       `json:"decisions"`
	ActionItems        []ActionItem     `json:"action_items"`
	MeetingsToSchedule []MeetingRequest `json:"meetings_to_schedule"`
	Risks              []string         `json:"risks"`
	KeyPoints          []string         `json:"key_points"`
}

// Parse decodes raw summarizer output into a Summary. Markdown code fences
// and surrounding prose are tolerated; anything that does not contain one
// well-formed JSON object with a non-empty tldr is rejected.
func Parse(raw string) (Summary, error) {
	text := stripCodeFence(raw)
	text = extractObject(text)
	if text == "" {
		return Summary{}, fmt.Errorf("%w: no JSON object found", ErrMalformedPayload)
	}

	var parsed Summary
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(parsed.TLDR) == "" {
		return Summary{}, ErrMissingTLDR
	}

	parsed.normalize()
	return parsed, nil
}

// MustJSON renders the summary back to its canonical JSON form for storage.
func (s Summary) MustJSON() string {
	encoded, err := json.Marshal(s)
	if err != nil {
		// Summary contains only JSON-encodable fields.
		panic(err)
	}
	return string(encoded)
}

func (s *Summary) normalize() {
	if s.ContextConnections == nil {
		s.ContextConnections = []Connection{}
	}
	if s.Decisions == nil {
		s.Decisions = []Decision{}
	}
	if s.ActionItems == nil {
		s.ActionItems = []ActionItem{}
	}
	if s.MeetingsToSchedule == nil {
		s.MeetingsToSchedule = []MeetingRequest{}
	}
	if s.Risks == nil {
		s.Risks = []string{}
	}
	if s.KeyPoints == nil {
		s.KeyPoints = []string{}
	}
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
	} else {
		return text
	}
	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// extractObject returns the outermost {...} span, so that stray prose before
// or after the object does not break decoding.
func extractObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
