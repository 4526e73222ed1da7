package runner

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/observability"
	"github.com/cascadialabs/turnengine/internal/pluginapi"
)

// ToolRunnerContext carries the identity and ambient values runToolCall needs
// to stamp and route one tool call (§4.4).
type ToolRunnerContext struct {
	ContextID string
	TaskID    string
	Plugins   []pluginapi.Plugin
	Logger    *slog.Logger
	Invoke    pluginapi.InvocationContext

	// Tracer is optional; when nil no spans are created.
	Tracer *observability.Tracer
}

func (rc ToolRunnerContext) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}

// RunToolCall implements runToolCall (§4.4): validates the call, resolves the
// owning plugin, emits tool-start, passes through the plugin's substream
// (recovering from panics/errors into a failed tool-complete), and stamps
// every emitted event with {contextId, taskId, path}.
func RunToolCall(ctx context.Context, rc ToolRunnerContext, call events.ToolCall) <-chan events.ContextEvent {
	out := make(chan events.ContextEvent, 4)

	stamp := func(e events.Event) events.ContextEvent {
		return events.Stamp(e, rc.ContextID, rc.TaskID).WithPath("tool:" + call.Function.Name)
	}

	var span trace.Span

	go func() {
		defer close(out)

		if rc.Tracer != nil {
			ctx, span = rc.Tracer.TraceToolCall(ctx, call.Function.Name)
			defer span.End()
		}

		if !events.ValidToolCall(call) {
			out <- stamp(events.NewToolComplete(call.ID, call.Function.Name, false, nil, fmt.Sprintf("Invalid tool call format: %s", call.Function.Name)))
			return
		}

		plugin, def, found := pluginapi.FindTool(ctx, rc.Plugins, call.Function.Name)
		if !found {
			// No plugin resolves this tool: let the original tool-call event
			// flow through unchanged for an upstream consumer to handle (§4.4 step 2).
			out <- events.Stamp(events.NewToolCallEvent(call), rc.ContextID, rc.TaskID)
			return
		}

		icon := ""
		if def != nil {
			icon = def.Icon
		}
		out <- stamp(events.NewToolStart(call.ID, call.Function.Name, icon))

		sub, err := runPluginTool(ctx, plugin, call, rc.Invoke)
		if err != nil {
			if rc.Tracer != nil {
				rc.Tracer.RecordError(span, err)
			}
			out <- stamp(events.NewToolComplete(call.ID, call.Function.Name, false, nil, err.Error()))
			return
		}

		for e := range sub {
			if tc, ok := events.AsToolComplete(e); ok {
				rc.logger().Log(ctx, traceLevel(), "tool-complete", "toolCallId", tc.ToolCallID, "toolName", tc.ToolName, "success", tc.Success)
			}
			out <- stamp(e)
		}
	}()

	return out
}

// runPluginTool invokes plugin.ExecuteTool, converting a synchronous panic
// into an error so the caller can fold it into a failed tool-complete (§4.4
// step 4: "any exception thrown synchronously or asynchronously is caught").
func runPluginTool(ctx context.Context, plugin pluginapi.ToolPlugin, call events.ToolCall, ictx pluginapi.InvocationContext) (ch <-chan events.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return plugin.ExecuteTool(ctx, call, ictx)
}

// traceLevel is slog.LevelDebug - 4, the conventional "trace" level used
// when a dedicated trace constant isn't defined by log/slog itself.
func traceLevel() slog.Level {
	return slog.LevelDebug - 4
}
