package openai

import (
	"encoding/json"
	"testing"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	if p.defaultModel != defaultModel {
		t.Fatalf("expected default model %q, got %q", defaultModel, p.defaultModel)
	}
	if p.Name() != "openai" {
		t.Fatalf("expected name 'openai', got %q", p.Name())
	}
}

func TestConvertMessagesMapsRolesAndToolCalls(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "", ToolCalls: []events.ToolCall{
			{ID: "call_1", Type: "function", Function: events.ToolCallFunction{Name: "search", Arguments: map[string]any{"q": "go"}}},
		}},
		{Role: llm.RoleTool, ToolCallID: "call_1", Content: "results"},
	}

	out := convertMessages(msgs)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	if out[2].ToolCalls[0].ID != "call_1" {
		t.Fatalf("expected tool call id to survive conversion, got %q", out[2].ToolCalls[0].ID)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(out[2].ToolCalls[0].Function.Arguments), &args); err != nil {
		t.Fatalf("expected valid JSON arguments: %v", err)
	}
	if args["q"] != "go" {
		t.Fatalf("expected argument q=go, got %v", args["q"])
	}
	if out[3].ToolCallID != "call_1" {
		t.Fatalf("expected tool message to carry tool_call_id, got %q", out[3].ToolCallID)
	}
}

func TestConvertToolsFallsBackOnInvalidSchema(t *testing.T) {
	tools := convertTools([]llm.ToolDefinition{{ID: "broken", Description: "d", Parameters: []byte("not json")}})
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	schema, ok := tools[0].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("expected fallback schema to be a map, got %T", tools[0].Function.Parameters)
	}
	if schema["type"] != "object" {
		t.Fatalf("expected fallback schema type=object, got %v", schema["type"])
	}
}

func TestIsRetryableErrorMatchesKnownMarkers(t *testing.T) {
	if isRetryableError(nil) {
		t.Fatal("nil error must not be retryable")
	}
	cases := map[string]bool{
		"429 rate limit exceeded":       true,
		"received 503 from upstream":    true,
		"context deadline exceeded":     true,
		"invalid request: bad api key":  false,
		"400 Bad Request: missing field": false,
	}
	for msg, want := range cases {
		got := isRetryableError(errStr(msg))
		if got != want {
			t.Fatalf("isRetryableError(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errStr string

func (e errStr) Error() string { return string(e) }
