package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
)

func TestConvertMessagesSkipsSystemAndMapsToolResult(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "", ToolCalls: []events.ToolCall{
			{ID: "call_1", Type: "function", Function: events.ToolCallFunction{Name: "search", Arguments: map[string]any{"q": "go"}}},
		}},
		{Role: llm.RoleTool, ToolCallID: "call_1", Content: "results"},
	}

	out, err := convertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages (system skipped), got %d", len(out))
	}
	if out[0].Role != types.ConversationRoleUser {
		t.Fatalf("expected first message role user, got %v", out[0].Role)
	}
	if out[1].Role != types.ConversationRoleAssistant {
		t.Fatalf("expected assistant role for tool-call message, got %v", out[1].Role)
	}
}

func TestSystemPromptExtractsFirstSystemMessage(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hi"},
	}
	if got := systemPrompt(msgs); got != "be terse" {
		t.Fatalf("expected system prompt %q, got %q", "be terse", got)
	}
}

func TestConvertToolsRejectsInvalidSchema(t *testing.T) {
	_, err := convertTools([]llm.ToolDefinition{{ID: "broken", Parameters: []byte("not json")}})
	if err == nil {
		t.Fatal("expected error for invalid tool schema")
	}
}

func TestConvertToolsBuildsToolConfiguration(t *testing.T) {
	cfg, err := convertTools([]llm.ToolDefinition{
		{ID: "search", Description: "search the web", Parameters: []byte(`{"type":"object"}`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(cfg.Tools))
	}
}

func TestIsRetryableErrorClassifiesThrottlingAndGenericMarkers(t *testing.T) {
	if isRetryableError(nil) {
		t.Fatal("nil error must not be retryable")
	}
	if !isRetryableError(errors.New("operation error Bedrock Runtime: ConverseStream, ThrottlingException: too many requests")) {
		t.Fatal("expected ThrottlingException to be retryable")
	}
	if !isRetryableError(errors.New("received 503 from upstream")) {
		t.Fatal("expected 503 to be retryable")
	}
	if isRetryableError(errors.New("ValidationException: invalid model id")) {
		t.Fatal("expected ValidationException to not be retryable")
	}
	if !isRetryableError(context.DeadlineExceeded) {
		t.Fatal("expected context.DeadlineExceeded to be retryable")
	}
}
