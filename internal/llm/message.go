// Package llm defines the conversation message/tool-definition types and the
// Provider contract the turn engine drives (§3, §6).
package llm

import (
	"encoding/json"

	"github.com/cascadialabs/turnengine/internal/events"
)

// Role is the tagged discriminator of LLMMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the tagged union LLMMessage from §3. Invariant: every Role=tool
// message's ToolCallID must match some ToolCalls[*].ID in a preceding
// Role=assistant message within the same conversation.
type Message struct {
	Role       Role             `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []events.ToolCall `json:"toolCalls,omitempty"`  // assistant only
	ToolCallID string           `json:"toolCallId,omitempty"` // tool only
	Name       string           `json:"name,omitempty"`       // tool only: the tool's name
}

// ToolDefinition is the wire-format tool description passed to a provider.
type ToolDefinition struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Icon        string          `json:"icon,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}
