// Package pluginapi defines the capability-tagged plugin contract (§3, §4.2,
// §9): a concrete plugin implements either or both of SystemPromptPlugin and
// ToolPlugin, discriminated by a type assertion, never by an inheritance
// hierarchy. Grounded on the teacher's single-hook Plugin interface
// (internal/agent/plugin.go), generalized to the spec's two capabilities.
package pluginapi

import (
	"context"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
)

// Position discriminates where a SystemPrompt is rendered relative to history.
type Position string

const (
	PositionBefore Position = "before"
	PositionAfter  Position = "after"
)

// SystemPrompt is one contribution to the assembled system prompt set.
type SystemPrompt struct {
	Content          string
	Position         Position
	PositionSequence int
	Metadata         map[string]any
	Source           string
}

// SystemPromptPlugin contributes system prompts to every iteration (§4.2).
type SystemPromptPlugin interface {
	GenerateSystemPrompts(ctx context.Context, ictx InvocationContext) ([]SystemPrompt, error)
}

// ToolPlugin contributes tool definitions and executes tool calls (§4.2).
// The executing plugin is responsible for emitting its own tool-complete
// (and optionally tool-progress, internal:tool-message) events; the tool
// runner prepends tool-start and stamps context.
type ToolPlugin interface {
	ListTools(ctx context.Context) ([]llm.ToolDefinition, error)
	GetTool(ctx context.Context, id string) (*llm.ToolDefinition, bool, error)
	ExecuteTool(ctx context.Context, call events.ToolCall, ictx InvocationContext) (<-chan events.Event, error)
}

// InvocationContext carries per-turn identity and ambient values threaded
// through plugin calls. AuthContext is deliberately opaque (§1 Non-goals:
// no authentication implementation in the core).
type InvocationContext struct {
	ContextID    string
	TaskID       string
	AuthContext  any
	Metadata     map[string]any
}

// Plugin is the empty marker interface satisfied by any value that
// implements at least one of SystemPromptPlugin or ToolPlugin. It exists
// only to give plugin sets a concrete element type; capability discrimination
// always happens via type assertion on the underlying value.
type Plugin any

// AsSystemPromptPlugin type-asserts p as a SystemPromptPlugin.
func AsSystemPromptPlugin(p Plugin) (SystemPromptPlugin, bool) {
	sp, ok := p.(SystemPromptPlugin)
	return sp, ok
}

// AsToolPlugin type-asserts p as a ToolPlugin.
func AsToolPlugin(p Plugin) (ToolPlugin, bool) {
	tp, ok := p.(ToolPlugin)
	return tp, ok
}
