package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/observability"
	"github.com/cascadialabs/turnengine/internal/pluginapi"
)

// LoopConfig configures runLoop (§4.6), generalized from the teacher's
// LoopConfig (loop.go) to the spec's recursive-merge iteration shape: the
// teacher's MaxToolCalls/MaxWallTime budgets are carried forward as the
// supplemented wall-clock/tool-call caps (SPEC_FULL.md "SUPPLEMENTED FEATURES").
type LoopConfig struct {
	MaxIterations   int
	StopOnToolError bool
	MaxToolCalls    int           // 0 = unlimited
	MaxWallTime     time.Duration // 0 = unlimited
}

// DefaultLoopConfig returns the spec's stated default (MaxIterations: 10),
// mirroring the teacher's DefaultLoopConfig shape.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxIterations: 10}
}

func sanitizeLoopConfig(cfg LoopConfig) LoopConfig {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultLoopConfig().MaxIterations
	}
	return cfg
}

// LoopInput is the input to RunLoop.
type LoopInput struct {
	ContextID string
	TaskID    string
	Provider  llm.Source
	Plugins   []pluginapi.Plugin
	Logger    *slog.Logger
	Config    LoopConfig
	History   []llm.Message

	// Tracer is optional; when nil no spans are created.
	Tracer *observability.Tracer
}

// RunLoop implements runLoop (§4.6): emits task-created and
// task-status{working}, then drives the recursive-merge iteration loop,
// stopping when an iteration's content-complete has a non-tool_calls
// finishReason, or when MaxIterations/MaxToolCalls/MaxWallTime is exceeded.
// Every iteration's full event stream is forwarded before the next begins
// (§5: "iteration N's complete event stream precedes iteration N+1's").
func RunLoop(ctx context.Context, in LoopInput) <-chan events.ContextEvent {
	cfg := sanitizeLoopConfig(in.Config)
	out := make(chan events.ContextEvent, 16)
	stamp := func(e events.Event) events.ContextEvent { return events.Stamp(e, in.ContextID, in.TaskID) }

	go func() {
		defer close(out)

		out <- stamp(events.NewTaskCreated("user", map[string]any{"historyLength": len(in.History)}))
		out <- stamp(events.NewTaskStatus(events.TaskWorking, ""))

		messages := append([]llm.Message(nil), in.History...)
		toolCallCount := 0
		start := time.Now()
		var lastContentComplete *events.ContentComplete
		failed := ""

		for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
			if cfg.MaxWallTime > 0 && time.Since(start) > cfg.MaxWallTime {
				failed = ErrMaxWallTime.Error()
				break
			}

			iterCfg := IterationConfig{
				IterationNumber: iteration,
				Provider:        in.Provider,
				Plugins:         in.Plugins,
				ContextID:       in.ContextID,
				TaskID:          in.TaskID,
				Logger:          in.Logger,
				Tracer:          in.Tracer,
			}

			iterOut, err := RunIteration(ctx, iterCfg, messages)
			if err != nil {
				out <- stamp(events.NewTaskStatus(events.TaskFailed, err.Error()))
				out <- stamp(events.NewTaskComplete("", nil))
				return
			}

			var buffer []events.ContextEvent
			stop := false
			streamErr := ""
			for e := range iterOut {
				out <- e
				buffer = append(buffer, e)

				if se, ok := events.AsStreamError(e.Event); ok {
					// A provider-level stream failure ends the turn outright:
					// a possibly truncated iteration must never be mistaken
					// for a normal finish or silently retried into
					// "max iterations reached".
					streamErr = se.Err
					continue
				}
				if cc, ok := events.AsContentComplete(e.Event); ok {
					lastContentComplete = cc
					if cc.FinishReason != events.FinishToolCalls {
						stop = true
					}
				}
				if tc, ok := events.AsToolComplete(e.Event); ok {
					toolCallCount++
					if !tc.Success && cfg.StopOnToolError {
						failed = ErrToolFailed.Error()
						stop = true
					}
				}
			}

			if streamErr != "" {
				failed = streamErr
				break
			}
			if cfg.MaxToolCalls > 0 && toolCallCount > cfg.MaxToolCalls {
				failed = ErrMaxToolCalls.Error()
				break
			}
			if stop {
				break
			}
			if iteration == cfg.MaxIterations-1 {
				failed = ErrMaxIterations.Error()
				break
			}

			messages = append(messages, eventsToMessages(buffer)...)
		}

		if failed != "" {
			out <- stamp(events.NewTaskStatus(events.TaskFailed, failed))
			out <- stamp(events.NewTaskComplete("", nil))
			return
		}

		content := ""
		var meta map[string]any
		if lastContentComplete != nil {
			content = lastContentComplete.Content
			meta = map[string]any{"finishReason": lastContentComplete.FinishReason}
		}
		out <- stamp(events.NewTaskComplete(content, meta))
	}()

	return out
}

// eventsToMessages implements the §4.6 event→history conversion. Child-task
// events (ParentTaskID set) are excluded: they belong to a subtask and must
// not contribute to the parent loop's history.
func eventsToMessages(buffer []events.ContextEvent) []llm.Message {
	var out []llm.Message
	for _, ce := range buffer {
		if ce.IsChildTaskEvent() {
			continue
		}
		switch e := ce.Event.(type) {
		case *events.ContentComplete:
			if e.Content != "" {
				out = append(out, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
			} else if e.FinishReason == events.FinishToolCalls && len(e.ToolCalls) > 0 {
				out = append(out, llm.Message{Role: llm.RoleAssistant, Content: "", ToolCalls: e.ToolCalls})
			}
		case *events.ToolComplete:
			out = append(out, llm.Message{
				Role:       llm.RoleTool,
				Name:       e.ToolName,
				ToolCallID: e.ToolCallID,
				Content:    toolResultContent(e),
			})
		case *events.InternalToolMessage:
			out = append(out, llm.Message{Role: llm.Role(e.Role), Content: e.Content})
		}
	}
	return out
}

// toolResultContent implements the §4.6 tool-complete → message content rule:
// success with a result serializes the result as JSON, success with no
// result is "Success", failure uses the error text (or a default).
func toolResultContent(e *events.ToolComplete) string {
	if !e.Success {
		if e.Error != "" {
			return e.Error
		}
		return "Error executing tool"
	}
	if e.Result == nil {
		return "Success"
	}
	b, err := json.Marshal(e.Result)
	if err != nil {
		return "Success"
	}
	return string(b)
}
