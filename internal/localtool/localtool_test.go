package localtool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/pluginapi"
)

func addTool() *Tool {
	return &Tool{
		Definition: llm.ToolDefinition{
			ID:          "add",
			Description: "adds two numbers",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"a": {"type": "number"},
					"b": {"type": "number"}
				},
				"required": ["a", "b"]
			}`),
		},
		Handler: func(ctx context.Context, ictx pluginapi.InvocationContext, args map[string]any) HandlerResult {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return HandlerResult{Success: true, Result: a + b}
		},
	}
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestExecuteToolSuccess(t *testing.T) {
	reg := NewRegistry(addTool())
	call := events.ToolCall{ID: "c1", Function: events.ToolCallFunction{Name: "add", Arguments: map[string]any{"a": 5.0, "b": 3.0}}}

	ch, err := reg.ExecuteTool(context.Background(), call, pluginapi.InvocationContext{})
	if err != nil {
		t.Fatal(err)
	}
	evs := drain(ch)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	tc, ok := events.AsToolComplete(evs[0])
	if !ok {
		t.Fatalf("expected ToolComplete, got %T", evs[0])
	}
	if !tc.Success || tc.Result != 8.0 {
		t.Fatalf("unexpected result: %+v", tc)
	}
}

func TestExecuteToolInvalidArguments(t *testing.T) {
	reg := NewRegistry(addTool())
	call := events.ToolCall{ID: "c2", Function: events.ToolCallFunction{Name: "add", Arguments: map[string]any{"a": 5.0}}}

	ch, err := reg.ExecuteTool(context.Background(), call, pluginapi.InvocationContext{})
	if err != nil {
		t.Fatal(err)
	}
	evs := drain(ch)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	tc, ok := events.AsToolComplete(evs[0])
	if !ok {
		t.Fatalf("expected ToolComplete, got %T", evs[0])
	}
	if tc.Success {
		t.Fatal("expected failure on invalid arguments")
	}
	if len(tc.Error) == 0 {
		t.Fatal("expected non-empty error message")
	}
}

func TestExecuteToolUnknownToolErrors(t *testing.T) {
	reg := NewRegistry(addTool())
	call := events.ToolCall{ID: "c3", Function: events.ToolCallFunction{Name: "subtract"}}

	if _, err := reg.ExecuteTool(context.Background(), call, pluginapi.InvocationContext{}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecuteToolHandlerPanicBecomesFailedComplete(t *testing.T) {
	tool := &Tool{
		Definition: llm.ToolDefinition{ID: "boom", Parameters: json.RawMessage(`{"type":"object"}`)},
		Handler: func(ctx context.Context, ictx pluginapi.InvocationContext, args map[string]any) HandlerResult {
			panic("handler exploded")
		},
	}
	reg := NewRegistry(tool)
	call := events.ToolCall{ID: "c5", Function: events.ToolCallFunction{Name: "boom"}}

	ch, err := reg.ExecuteTool(context.Background(), call, pluginapi.InvocationContext{})
	if err != nil {
		t.Fatal(err)
	}
	evs := drain(ch)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	tc, ok := events.AsToolComplete(evs[0])
	if !ok {
		t.Fatalf("expected ToolComplete, got %T", evs[0])
	}
	if tc.Success {
		t.Fatal("expected failure after handler panic")
	}
	if tc.ToolCallID != "c5" {
		t.Fatalf("expected tool-complete for call c5, got %q", tc.ToolCallID)
	}
}

func TestExecuteToolEmitsInternalToolMessages(t *testing.T) {
	tool := &Tool{
		Definition: llm.ToolDefinition{ID: "learn", Parameters: json.RawMessage(`{"type":"object"}`)},
		Handler: func(ctx context.Context, ictx pluginapi.InvocationContext, args map[string]any) HandlerResult {
			return HandlerResult{Success: true, Result: "ok", Messages: []string{"you have learned skill X"}}
		},
	}
	reg := NewRegistry(tool)
	call := events.ToolCall{ID: "c4", Function: events.ToolCallFunction{Name: "learn"}}

	ch, err := reg.ExecuteTool(context.Background(), call, pluginapi.InvocationContext{})
	if err != nil {
		t.Fatal(err)
	}
	evs := drain(ch)
	if len(evs) != 2 {
		t.Fatalf("expected tool-complete + 1 internal message, got %d", len(evs))
	}
	if _, ok := events.AsInternalToolMessage(evs[1]); !ok {
		t.Fatalf("expected second event to be InternalToolMessage, got %T", evs[1])
	}
}
