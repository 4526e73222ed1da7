// Package events defines the typed event taxonomy that flows out of the
// turn execution engine: task lifecycle, content/reasoning/tool events,
// artifact writes, and internal/debug events.
package events

import "strings"

// Kind discriminates the tagged union of events the engine produces.
type Kind string

const (
	KindTaskCreated  Kind = "task-created"
	KindTaskStatus   Kind = "task-status"
	KindTaskComplete Kind = "task-complete"

	KindContentDelta    Kind = "content-delta"
	KindContentComplete Kind = "content-complete"
	KindToolCall        Kind = "tool-call"
	KindToolStart       Kind = "tool-start"
	KindToolProgress    Kind = "tool-progress"
	KindToolComplete    Kind = "tool-complete"
	KindThoughtStream   Kind = "thought-stream"
	KindLLMUsage        Kind = "llm-usage"

	KindFileWrite    Kind = "file-write"
	KindDataWrite    Kind = "data-write"
	KindDatasetWrite Kind = "dataset-write"

	KindInternalLLMCall       Kind = "internal:llm-call"
	KindInternalToolStart     Kind = "internal:tool-start"
	KindInternalToolComplete  Kind = "internal:tool-complete"
	KindInternalCheckpoint    Kind = "internal:checkpoint"
	KindInternalThoughtProc   Kind = "internal:thought-process"
	KindInternalToolMessage   Kind = "internal:tool-message"
	KindInternalStreamError   Kind = "internal:stream-error"
)

// IsInternal reports whether a kind is an internal/debug event, which must
// never appear on external streams (§4.1).
func IsInternal(k Kind) bool {
	return strings.HasPrefix(string(k), "internal:")
}

// TaskStatusValue is the status carried by a task-status event.
type TaskStatusValue string

const (
	TaskWorking        TaskStatusValue = "working"
	TaskWaitingInput   TaskStatusValue = "waiting-input"
	TaskWaitingAuth    TaskStatusValue = "waiting-auth"
	TaskWaitingSubtask TaskStatusValue = "waiting-subtask"
	TaskCompleted      TaskStatusValue = "completed"
	TaskFailed         TaskStatusValue = "failed"
	TaskCanceled       TaskStatusValue = "canceled"
)

// FinishReason is the reason an LLM response finished.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)
