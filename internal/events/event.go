package events

import "time"

// Event is the common interface implemented by every concrete event type.
// Discrimination is by EventKind(), not by Go type switch alone, so that callers
// that only care about the taxonomy don't need an exhaustive type switch.
type Event interface {
	EventKind() Kind
	EventTime() time.Time
}

// Base is embedded by every concrete event type to satisfy Event.
type Base struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func (b Base) EventKind() Kind        { return b.Kind }
func (b Base) EventTime() time.Time   { return b.Timestamp }

func newBase(k Kind) Base {
	return Base{Kind: k, Timestamp: time.Now()}
}

// ToolCall is the LLM's structured request to invoke a named tool.
type ToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"` // always "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the tool name and its structured arguments.
type ToolCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// --- Task lifecycle -------------------------------------------------------

// TaskCreated opens a turn's event stream (§4.1, §8 invariant 1).
type TaskCreated struct {
	Base
	Initiator string         `json:"initiator"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewTaskCreated(initiator string, metadata map[string]any) *TaskCreated {
	return &TaskCreated{Base: newBase(KindTaskCreated), Initiator: initiator, Metadata: metadata}
}

// TaskStatus reports a transition in the task's lifecycle status.
type TaskStatus struct {
	Base
	Status  TaskStatusValue `json:"status"`
	Message string          `json:"message,omitempty"`
}

func NewTaskStatus(status TaskStatusValue, message string) *TaskStatus {
	return &TaskStatus{Base: newBase(KindTaskStatus), Status: status, Message: message}
}

// TaskComplete is the terminal "success" event for a turn.
type TaskComplete struct {
	Base
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewTaskComplete(content string, metadata map[string]any) *TaskComplete {
	return &TaskComplete{Base: newBase(KindTaskComplete), Content: content, Metadata: metadata}
}

// --- Content / reasoning / tools ------------------------------------------

// ContentDelta is incremental assistant text.
type ContentDelta struct {
	Base
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func NewContentDelta(index int, text string) *ContentDelta {
	return &ContentDelta{Base: newBase(KindContentDelta), Index: index, Text: text}
}

// ContentComplete is the assembled assistant response for one LLM call.
type ContentComplete struct {
	Base
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finishReason"`
	ToolCalls    []ToolCall   `json:"toolCalls,omitempty"`
}

func NewContentComplete(content string, reason FinishReason, toolCalls []ToolCall) *ContentComplete {
	return &ContentComplete{Base: newBase(KindContentComplete), Content: content, FinishReason: reason, ToolCalls: toolCalls}
}

// ToolCallEvent carries the LLM's raw tool-call request (§3 ToolCall).
type ToolCallEvent struct {
	Base
	Call ToolCall `json:"call"`
}

func NewToolCallEvent(call ToolCall) *ToolCallEvent {
	return &ToolCallEvent{Base: newBase(KindToolCall), Call: call}
}

// ToolStart is emitted by the tool runner before invoking a resolved plugin.
type ToolStart struct {
	Base
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Icon       string `json:"icon,omitempty"`
}

func NewToolStart(toolCallID, toolName, icon string) *ToolStart {
	return &ToolStart{Base: newBase(KindToolStart), ToolCallID: toolCallID, ToolName: toolName, Icon: icon}
}

// ToolProgress is an optional mid-execution progress update from a plugin.
type ToolProgress struct {
	Base
	ToolCallID string  `json:"toolCallId"`
	ToolName   string  `json:"toolName"`
	Message    string  `json:"message,omitempty"`
	Percent    float64 `json:"percent,omitempty"`
}

func NewToolProgress(toolCallID, toolName, message string) *ToolProgress {
	return &ToolProgress{Base: newBase(KindToolProgress), ToolCallID: toolCallID, ToolName: toolName, Message: message}
}

// ToolComplete is the terminal event for one tool invocation.
type ToolComplete struct {
	Base
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

func NewToolComplete(toolCallID, toolName string, success bool, result any, errMsg string) *ToolComplete {
	return &ToolComplete{
		Base: newBase(KindToolComplete), ToolCallID: toolCallID, ToolName: toolName,
		Success: success, Result: result, Error: errMsg,
	}
}

// ThoughtStream carries interleaved model reasoning text, when a provider emits it.
type ThoughtStream struct {
	Base
	Text string `json:"text"`
}

func NewThoughtStream(text string) *ThoughtStream {
	return &ThoughtStream{Base: newBase(KindThoughtStream), Text: text}
}

// LLMUsage reports token accounting for one LLM call.
type LLMUsage struct {
	Base
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

func NewLLMUsage(prompt, completion, total int) *LLMUsage {
	return &LLMUsage{Base: newBase(KindLLMUsage), PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

// --- Artifact writes -------------------------------------------------------

// FileWrite reports one chunk of a file artifact. Metadata fields are only
// meaningful on the first event for that artifact (Index == 0).
type FileWrite struct {
	Base
	ArtifactID  string `json:"artifactId"`
	Index       int    `json:"index"`
	Chunk       []byte `json:"chunk"`
	Complete    bool   `json:"complete"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	TotalSize   int64  `json:"totalSize,omitempty"`
}

func NewFileWrite(artifactID string, index int, chunk []byte, complete bool) *FileWrite {
	return &FileWrite{Base: newBase(KindFileWrite), ArtifactID: artifactID, Index: index, Chunk: chunk, Complete: complete}
}

// DataWrite is an atomic write of a structured data artifact.
type DataWrite struct {
	Base
	ArtifactID string `json:"artifactId"`
	Data       any    `json:"data"`
	Name       string `json:"name,omitempty"`
}

func NewDataWrite(artifactID string, data any) *DataWrite {
	return &DataWrite{Base: newBase(KindDataWrite), ArtifactID: artifactID, Data: data}
}

// ColumnSchema describes one column of a dataset artifact.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DatasetWrite reports one batch of rows appended to a dataset artifact.
type DatasetWrite struct {
	Base
	ArtifactID string           `json:"artifactId"`
	Index      int              `json:"index"`
	Rows       []map[string]any `json:"rows"`
	Complete   bool             `json:"complete"`
	Name       string           `json:"name,omitempty"`
	Columns    []ColumnSchema   `json:"columns,omitempty"`
}

func NewDatasetWrite(artifactID string, index int, rows []map[string]any, complete bool) *DatasetWrite {
	return &DatasetWrite{Base: newBase(KindDatasetWrite), ArtifactID: artifactID, Index: index, Rows: rows, Complete: complete}
}

// --- Internal/debug ---------------------------------------------------------

// InternalToolMessage carries a synthetic message that should be spliced
// into conversation history (e.g. "you have learned skill X") but never
// appears on an external stream (§4.1, §8 invariant 9).
type InternalToolMessage struct {
	Base
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewInternalToolMessage(role, content string) *InternalToolMessage {
	return &InternalToolMessage{Base: newBase(KindInternalToolMessage), Role: role, Content: content}
}

// StreamError signals that a Provider's stream ended because of a
// transport/API failure rather than a normal finish, so a (possibly
// truncated) content-complete must not be mistaken for success. Internal:
// never reaches an external stream (§4.1) — the loop that observes it
// converts it into a real task-status{failed}/task-complete pair.
type StreamError struct {
	Base
	Err string `json:"err"`
}

func NewStreamError(err error) *StreamError {
	return &StreamError{Base: newBase(KindInternalStreamError), Err: err.Error()}
}

// InternalCheckpoint carries an opaque loop checkpoint for persistence/replay.
type InternalCheckpoint struct {
	Base
	State map[string]any `json:"state"`
}

func NewInternalCheckpoint(state map[string]any) *InternalCheckpoint {
	return &InternalCheckpoint{Base: newBase(KindInternalCheckpoint), State: state}
}

// InternalThoughtProcess carries raw provider debug/reasoning trace data not
// meant for end users.
type InternalThoughtProcess struct {
	Base
	Detail string `json:"detail"`
}

func NewInternalThoughtProcess(detail string) *InternalThoughtProcess {
	return &InternalThoughtProcess{Base: newBase(KindInternalThoughtProc), Detail: detail}
}
