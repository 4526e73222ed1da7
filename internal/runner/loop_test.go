package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/pluginapi"
)

// sequencedProvider returns a different canned response on each call,
// modeling the multi-iteration exchanges in scenarios S1/S2.
type sequencedProvider struct {
	responses [][]events.Event
	calls     int
}

func (s *sequencedProvider) Name() string { return "sequenced" }

func (s *sequencedProvider) Call(ctx context.Context, req llm.CompletionRequest) (<-chan events.Event, error) {
	resp := s.responses[s.calls]
	s.calls++
	ch := make(chan events.Event, len(resp))
	for _, e := range resp {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func collectLoop(ch <-chan events.ContextEvent) []events.ContextEvent {
	var out []events.ContextEvent
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func kinds(evs []events.ContextEvent) []events.Kind {
	out := make([]events.Kind, len(evs))
	for i, e := range evs {
		out[i] = e.EventKind()
	}
	return out
}

func TestRunLoopSimpleTurnNoTools(t *testing.T) {
	p := &sequencedProvider{responses: [][]events.Event{
		{events.NewContentComplete("Hello", events.FinishStop, nil)},
	}}
	in := LoopInput{
		ContextID: "ctx1", TaskID: "t1",
		Provider: llm.Source{Provider: p},
		History:  []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		Config:   DefaultLoopConfig(),
	}

	evs := collectLoop(RunLoop(context.Background(), in))
	got := kinds(evs)
	want := []events.Kind{events.KindTaskCreated, events.KindTaskStatus, events.KindContentComplete, events.KindTaskComplete}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}

	tc := evs[len(evs)-1].Event.(*events.TaskComplete)
	if tc.Content != "Hello" {
		t.Fatalf("expected task-complete content Hello, got %q", tc.Content)
	}
}

func TestRunLoopOneToolRoundTrip(t *testing.T) {
	plugin := &stubToolPlugin{
		def: llm.ToolDefinition{ID: "add"},
		execute: func(call events.ToolCall) <-chan events.Event {
			ch := make(chan events.Event, 1)
			ch <- events.NewToolComplete(call.ID, call.Function.Name, true, 8.0, "")
			close(ch)
			return ch
		},
	}
	p := &sequencedProvider{responses: [][]events.Event{
		{events.NewContentComplete("", events.FinishToolCalls, []events.ToolCall{
			{ID: "c1", Type: "function", Function: events.ToolCallFunction{Name: "add", Arguments: map[string]any{"a": 5.0, "b": 3.0}}},
		})},
		{events.NewContentComplete("The answer is 8", events.FinishStop, nil)},
	}}
	in := LoopInput{
		ContextID: "ctx1", TaskID: "t1",
		Provider: llm.Source{Provider: p},
		Plugins:  []pluginapi.Plugin{plugin},
		Config:   DefaultLoopConfig(),
	}

	evs := collectLoop(RunLoop(context.Background(), in))
	got := kinds(evs)
	want := []events.Kind{
		events.KindTaskCreated, events.KindTaskStatus,
		events.KindContentComplete,
		events.KindToolStart, events.KindToolComplete,
		events.KindContentComplete,
		events.KindTaskComplete,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}

	last := evs[len(evs)-1].Event.(*events.TaskComplete)
	if last.Content != "The answer is 8" {
		t.Fatalf("expected final content, got %q", last.Content)
	}
}

func TestRunLoopMaxIterationsExceeded(t *testing.T) {
	resp := events.NewContentComplete("", events.FinishToolCalls, []events.ToolCall{
		{ID: "c1", Type: "function", Function: events.ToolCallFunction{Name: "add", Arguments: map[string]any{}}},
	})
	responses := make([][]events.Event, 3)
	for i := range responses {
		responses[i] = []events.Event{resp}
	}
	plugin := &stubToolPlugin{
		def: llm.ToolDefinition{ID: "add"},
		execute: func(call events.ToolCall) <-chan events.Event {
			ch := make(chan events.Event, 1)
			ch <- events.NewToolComplete(call.ID, call.Function.Name, true, 1.0, "")
			close(ch)
			return ch
		},
	}
	p := &sequencedProvider{responses: responses}
	in := LoopInput{
		ContextID: "ctx1", TaskID: "t1",
		Provider: llm.Source{Provider: p},
		Plugins:  []pluginapi.Plugin{plugin},
		Config:   LoopConfig{MaxIterations: 3},
	}

	evs := collectLoop(RunLoop(context.Background(), in))
	last := evs[len(evs)-1]
	tc, ok := last.Event.(*events.TaskComplete)
	if !ok || tc.Content != "" {
		t.Fatalf("expected empty task-complete after max iterations, got %+v", last)
	}
	prev := evs[len(evs)-2]
	status, ok := prev.Event.(*events.TaskStatus)
	if !ok || status.Status != events.TaskFailed {
		t.Fatalf("expected task-status{failed} before task-complete, got %+v", prev)
	}
}

func TestRunLoopStreamErrorFailsTurn(t *testing.T) {
	p := &sequencedProvider{responses: [][]events.Event{
		{events.NewContentDelta(0, "partial"), events.NewStreamError(errors.New("connection reset"))},
	}}
	in := LoopInput{
		ContextID: "ctx1", TaskID: "t1",
		Provider: llm.Source{Provider: p},
		History:  []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		Config:   DefaultLoopConfig(),
	}

	evs := collectLoop(RunLoop(context.Background(), in))
	last := evs[len(evs)-1]
	tc, ok := last.Event.(*events.TaskComplete)
	if !ok || tc.Content != "" {
		t.Fatalf("expected empty task-complete after stream error, got %+v", last)
	}
	prev := evs[len(evs)-2]
	status, ok := prev.Event.(*events.TaskStatus)
	if !ok || status.Status != events.TaskFailed || status.Message != "connection reset" {
		t.Fatalf("expected task-status{failed, connection reset}, got %+v", prev)
	}
}

func TestRunLoopStopOnToolError(t *testing.T) {
	plugin := &stubToolPlugin{
		def: llm.ToolDefinition{ID: "add"},
		execute: func(call events.ToolCall) <-chan events.Event {
			ch := make(chan events.Event, 1)
			ch <- events.NewToolComplete(call.ID, call.Function.Name, false, nil, "boom")
			close(ch)
			return ch
		},
	}
	p := &sequencedProvider{responses: [][]events.Event{
		{events.NewContentComplete("", events.FinishToolCalls, []events.ToolCall{
			{ID: "c1", Type: "function", Function: events.ToolCallFunction{Name: "add", Arguments: map[string]any{}}},
		})},
		{events.NewContentComplete("should not be reached", events.FinishStop, nil)},
	}}
	in := LoopInput{
		ContextID: "ctx1", TaskID: "t1",
		Provider: llm.Source{Provider: p},
		Plugins:  []pluginapi.Plugin{plugin},
		Config:   LoopConfig{MaxIterations: 10, StopOnToolError: true},
	}

	evs := collectLoop(RunLoop(context.Background(), in))
	if p.calls != 1 {
		t.Fatalf("expected loop to stop after the failed tool call, got %d provider calls", p.calls)
	}
	last := evs[len(evs)-1]
	tc, ok := last.Event.(*events.TaskComplete)
	if !ok || tc.Content != "" {
		t.Fatalf("expected empty task-complete after tool error, got %+v", last)
	}
	prev := evs[len(evs)-2]
	status, ok := prev.Event.(*events.TaskStatus)
	if !ok || status.Status != events.TaskFailed {
		t.Fatalf("expected task-status{failed}, got %+v", prev)
	}
}

func TestEventsToMessagesToolCompleteSuccess(t *testing.T) {
	buffer := []events.ContextEvent{
		events.Stamp(events.NewToolComplete("c1", "add", true, 8.0, ""), "ctx1", "t1"),
	}
	msgs := eventsToMessages(buffer)
	if len(msgs) != 1 || msgs[0].Role != llm.RoleTool || msgs[0].Content != "8" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestEventsToMessagesSkipsChildTaskEvents(t *testing.T) {
	ce := events.Stamp(events.NewContentComplete("should not appear", events.FinishStop, nil), "ctx1", "t1")
	ce.ParentTaskID = "parent-task"
	msgs := eventsToMessages([]events.ContextEvent{ce})
	if len(msgs) != 0 {
		t.Fatalf("expected child-task events to be excluded, got %+v", msgs)
	}
}
