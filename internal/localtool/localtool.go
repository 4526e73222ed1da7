// Package localtool implements the local-tool plugin shape from §4.2: schema
// validation of call arguments, a user handler, and conversion of the
// handler's result into tool-complete plus zero-or-more
// internal:tool-message events.
package localtool

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/pluginapi"
)

// HandlerResult is what a user handler returns (§4.2).
type HandlerResult struct {
	Success  bool
	Result   any
	Error    string
	Messages []string
}

// Handler executes one validated tool call.
type Handler func(ctx context.Context, ictx pluginapi.InvocationContext, args map[string]any) HandlerResult

// Tool is one locally-registered tool: a definition, a JSON-Schema for its
// arguments, and a handler.
type Tool struct {
	Definition llm.ToolDefinition
	Handler    Handler

	mu     sync.Mutex
	schema *jsonschema.Schema
}

func (t *Tool) compile() (*jsonschema.Schema, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.schema != nil {
		return t.schema, nil
	}
	compiled, err := jsonschema.CompileString(t.Definition.ID+".schema.json", string(t.Definition.Parameters))
	if err != nil {
		return nil, fmt.Errorf("compile tool schema: %w", err)
	}
	t.schema = compiled
	return compiled, nil
}

// Registry is a pluginapi.ToolPlugin backed by an in-process set of Tools,
// grounded on pkg/pluginsdk/validation.go's compile-once-cache-forever schema
// handling (here cached per Tool instead of in a package-level sync.Map,
// since tools are already long-lived, constructor-registered values).
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry builds a Registry from a set of locally-defined tools.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Definition.ID] = t
	}
	return r
}

// ListTools implements pluginapi.ToolPlugin.
func (r *Registry) ListTools(ctx context.Context) ([]llm.ToolDefinition, error) {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	return defs, nil
}

// GetTool implements pluginapi.ToolPlugin.
func (r *Registry) GetTool(ctx context.Context, id string) (*llm.ToolDefinition, bool, error) {
	t, ok := r.tools[id]
	if !ok {
		return nil, false, nil
	}
	return &t.Definition, true, nil
}

// ExecuteTool implements pluginapi.ToolPlugin: validates arguments against the
// declared schema, producing tool-complete{success:false, error:"Invalid
// arguments: ..."} on failure (§4.2); otherwise invokes the handler and
// converts its result into tool-complete plus internal:tool-message events.
func (r *Registry) ExecuteTool(ctx context.Context, call events.ToolCall, ictx pluginapi.InvocationContext) (<-chan events.Event, error) {
	t, ok := r.tools[call.Function.Name]
	if !ok {
		return nil, fmt.Errorf("unknown local tool: %s", call.Function.Name)
	}

	out := make(chan events.Event, 4)
	go func() {
		defer close(out)
		// The handler runs in its own goroutine, outside
		// runner.RunToolCall's synchronous ExecuteTool call, so a panic
		// here needs its own recover to avoid crashing the process (§4.4
		// step 4, mirrors runner.runPluginTool's recover).
		defer func() {
			if r := recover(); r != nil {
				out <- events.NewToolComplete(call.ID, call.Function.Name, false, nil, fmt.Sprintf("tool panicked: %v", r))
			}
		}()

		schema, err := t.compile()
		if err != nil {
			out <- events.NewToolComplete(call.ID, call.Function.Name, false, nil, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}

		args := call.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}

		// jsonschema validates decoded JSON values (map[string]interface{} is
		// already exactly that shape), so no marshal round-trip is needed here.
		if err := schema.Validate(args); err != nil {
			out <- events.NewToolComplete(call.ID, call.Function.Name, false, nil, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}

		res := t.Handler(ctx, ictx, args)
		out <- events.NewToolComplete(call.ID, call.Function.Name, res.Success, res.Result, res.Error)
		for _, m := range res.Messages {
			out <- events.NewInternalToolMessage("tool", m)
		}
	}()
	return out, nil
}

var _ pluginapi.ToolPlugin = (*Registry)(nil)
