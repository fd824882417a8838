// Package summarizer wraps the opaque language-model collaborator that turns
// a raw transcript plus assembled context into a structured summary.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/scribelabs/minuted/internal/summary"
)

// ErrMissingAPIKey signals that the summarization capability is unavailable.
var ErrMissingAPIKey = errors.New("summarizer API key is required")

const systemPrompt = "You are an expert meeting summarizer. You respond with a single valid JSON object and nothing else."

// Summarizer produces a structured summary from a transcript. Implementations
// are opaque: callers never inspect how the summary is produced, only whether
// the result parses into the structured shape.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, contextText string, hasContext bool) (summary.Summary, error)
}

// OpenAIConfig configures the chat-completion backed summarizer.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  *zap.Logger
}

// OpenAISummarizer implements Summarizer on the OpenAI chat completions API.
type OpenAISummarizer struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAISummarizer constructs the summarizer. A missing API key returns
// ErrMissingAPIKey so callers can degrade instead of failing at call time.
func NewOpenAISummarizer(cfg OpenAIConfig) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAISummarizer{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

// Summarize requests one chat completion and parses the structured payload.
// The prior-context section appears in the prompt only when hasContext is
// true; otherwise the model is not invited to reference earlier meetings.
func (s *OpenAISummarizer) Summarize(
	ctx context.Context,
	transcript string,
	contextText string,
	hasContext bool,
) (summary.Summary, error) {
	if strings.TrimSpace(transcript) == "" {
		return summary.Summary{}, errors.New("transcript is empty")
	}

	start := time.Now()
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(transcript, contextText, hasContext)),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return summary.Summary{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return summary.Summary{}, errors.New("chat completion returned no choices")
	}

	parsed, err := summary.Parse(completion.Choices[0].Message.Content)
	if err != nil {
		return summary.Summary{}, err
	}

	s.logger.Debug("transcript summarized",
		zap.String("model", s.model),
		zap.Bool("used_context", hasContext),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()))
	return parsed, nil
}

// BuildPrompt renders the extraction prompt. Exported for prompt tests.
func BuildPrompt(transcript, contextText string, hasContext bool) string {
	var builder strings.Builder

	if hasContext {
		builder.WriteString("PREVIOUS MEETING CONTEXT:\n")
		builder.WriteString(contextText)
		builder.WriteString("\n\nIMPORTANT: Consider the context from previous meetings when analyzing this transcript.\n")
		builder.WriteString("- Reference any ongoing action items or decisions from previous meetings\n")
		builder.WriteString("- Identify connections between this meeting and previous discussions\n\n")
	}

	builder.WriteString("Analyze this meeting transcript and extract key information.\n\n")
	builder.WriteString("CURRENT MEETING TRANSCRIPT:\n")
	builder.WriteString(transcript)
	builder.WriteString("\n\nINSTRUCTIONS:\n")
	builder.WriteString(`Extract the following information and return it as valid JSON with these exact fields:

1. "tldr": A concise 2-3 sentence summary of the meeting
2. "context_connections": Array of connections to previous meetings (empty when no context provided), each with:
   - "connection": Description of the connection
   - "reference": What it refers to from previous meetings
3. "decisions": Array of decisions made, each with:
   - "decision": The decision made
   - "owner": Person responsible (if mentioned, otherwise null)
   - "context": Brief context explaining why
4. "action_items": Array of action items, each with:
   - "task": What needs to be done
   - "owner": Who is responsible (if mentioned, otherwise null)
   - "due_date": When it's due (if mentioned, otherwise null)
5. "meetings_to_schedule": Array of follow-up meetings explicitly requested, each with:
   - "title": Meeting title
   - "date": Date in YYYY-MM-DD form (if mentioned, otherwise "")
   - "time": Time in HH:MM form (if mentioned, otherwise "")
   - "duration_minutes": Planned duration in minutes
6. "risks": Array of risks or blockers identified (just strings)
7. "key_points": Array of main discussion points (strings)

Return ONLY the JSON object, no other text.`)

	return builder.String()
}
