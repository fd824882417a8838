package summarizer

import (
	"strings"
	"testing"
)

func TestNewOpenAISummarizerRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAISummarizer(OpenAIConfig{}); err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestBuildPromptIncludesContextSectionOnlyWithHistory(t *testing.T) {
	withContext := BuildPrompt("we talked", "PREVIOUS MEETINGS:\n(2026-08-01) kickoff", true)
	if !strings.Contains(withContext, "PREVIOUS MEETING CONTEXT:") {
		t.Fatalf("expected context header in prompt")
	}
	if !strings.Contains(withContext, "(2026-08-01) kickoff") {
		t.Fatalf("expected assembled context body in prompt")
	}
	if !strings.Contains(withContext, "Reference any ongoing action items") {
		t.Fatalf("expected context instruction in prompt")
	}

	withoutContext := BuildPrompt("we talked", "", false)
	if strings.Contains(withoutContext, "PREVIOUS MEETING CONTEXT:") {
		t.Fatalf("context header must be absent without history")
	}
	if strings.Contains(withoutContext, "Reference any ongoing action items") {
		t.Fatalf("context instruction must be absent without history")
	}
	if !strings.Contains(withoutContext, "CURRENT MEETING TRANSCRIPT:\nwe talked") {
		t.Fatalf("transcript must always be present")
	}
}

func TestBuildPromptAsksForStructuredFields(t *testing.T) {
	prompt := BuildPrompt("notes", "", false)
	for _, field := range []string{`"tldr"`, `"decisions"`, `"action_items"`, `"meetings_to_schedule"`, `"risks"`, `"key_points"`} {
		if !strings.Contains(prompt, field) {
			t.Fatalf("prompt missing field %s", field)
		}
	}
}
