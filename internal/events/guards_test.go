package events

import (
	"errors"
	"testing"
)

func TestValidToolCall(t *testing.T) {
	cases := []struct {
		name string
		tc   ToolCall
		want bool
	}{
		{"valid", ToolCall{ID: "c1", Type: "function", Function: ToolCallFunction{Name: "add"}}, true},
		{"valid_with_dashes", ToolCall{ID: "c1", Type: "function", Function: ToolCallFunction{Name: "search-web_v2"}}, true},
		{"missing_id", ToolCall{Type: "function", Function: ToolCallFunction{Name: "add"}}, false},
		{"wrong_type", ToolCall{ID: "c1", Type: "tool", Function: ToolCallFunction{Name: "add"}}, false},
		{"bad_name", ToolCall{ID: "c1", Type: "function", Function: ToolCallFunction{Name: "add call"}}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidToolCall(tt.tc); got != tt.want {
				t.Fatalf("ValidToolCall(%+v) = %v, want %v", tt.tc, got, tt.want)
			}
		})
	}
}

func TestIsInternal(t *testing.T) {
	if !IsInternal(KindInternalToolMessage) {
		t.Fatal("expected internal:tool-message to be internal")
	}
	if IsInternal(KindTaskComplete) {
		t.Fatal("expected task-complete to be external")
	}
	if !IsInternal(KindInternalStreamError) {
		t.Fatal("expected internal:stream-error to be internal")
	}
}

func TestAsStreamError(t *testing.T) {
	se := NewStreamError(errors.New("connection reset"))
	got, ok := AsStreamError(se)
	if !ok || got.Err != "connection reset" {
		t.Fatalf("unexpected result: %+v, %v", got, ok)
	}
	if _, ok := AsStreamError(NewTaskComplete("", nil)); ok {
		t.Fatal("expected non-StreamError to not assert")
	}
}

func TestContextEventWithPath(t *testing.T) {
	ce := Stamp(NewToolStart("c1", "search", ""), "ctx-1", "task-1")
	ce = ce.WithPath("tool:search")
	if len(ce.Path) != 1 || ce.Path[0] != "tool:search" {
		t.Fatalf("unexpected path: %v", ce.Path)
	}
	ce = ce.WithPath("tool:nested")
	if len(ce.Path) != 2 || ce.Path[0] != "tool:nested" || ce.Path[1] != "tool:search" {
		t.Fatalf("unexpected path after second prepend: %v", ce.Path)
	}
}

func TestIsChildTaskEvent(t *testing.T) {
	ce := Stamp(NewTaskCreated("user", nil), "ctx-1", "task-1")
	if ce.IsChildTaskEvent() {
		t.Fatal("expected no parent task id")
	}
	ce.ParentTaskID = "task-0"
	if !ce.IsChildTaskEvent() {
		t.Fatal("expected child task event")
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(NewTaskComplete("done", nil)) {
		t.Fatal("task-complete should be terminal")
	}
	if !IsTerminal(NewTaskStatus(TaskFailed, "boom")) {
		t.Fatal("task-status failed should be terminal")
	}
	if IsTerminal(NewTaskStatus(TaskWorking, "")) {
		t.Fatal("task-status working should not be terminal")
	}
}
