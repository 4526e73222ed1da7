package events

import "regexp"

// toolNameRE matches the ToolCall.Function.Name invariant from §3.
var toolNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidToolCall reports whether a tool call is well-formed per §3: non-empty
// id, type "function", and a name matching ^[A-Za-z0-9_-]+$.
func ValidToolCall(tc ToolCall) bool {
	if tc.ID == "" || tc.Type != "function" {
		return false
	}
	return toolNameRE.MatchString(tc.Function.Name)
}

// AsContentComplete type-asserts e as a *ContentComplete.
func AsContentComplete(e Event) (*ContentComplete, bool) {
	cc, ok := e.(*ContentComplete)
	return cc, ok
}

// AsToolCallEvent type-asserts e as a *ToolCallEvent.
func AsToolCallEvent(e Event) (*ToolCallEvent, bool) {
	tc, ok := e.(*ToolCallEvent)
	return tc, ok
}

// AsToolComplete type-asserts e as a *ToolComplete.
func AsToolComplete(e Event) (*ToolComplete, bool) {
	tc, ok := e.(*ToolComplete)
	return tc, ok
}

// AsInternalToolMessage type-asserts e as a *InternalToolMessage.
func AsInternalToolMessage(e Event) (*InternalToolMessage, bool) {
	m, ok := e.(*InternalToolMessage)
	return m, ok
}

// AsStreamError type-asserts e as a *StreamError.
func AsStreamError(e Event) (*StreamError, bool) {
	se, ok := e.(*StreamError)
	return se, ok
}

// IsTerminal reports whether e is a turn-terminating event: task-complete,
// or a task-status carrying a terminal status (failed/canceled) (§8 invariant 1).
func IsTerminal(e Event) bool {
	switch v := e.(type) {
	case *TaskComplete:
		return true
	case *TaskStatus:
		return v.Status == TaskFailed || v.Status == TaskCanceled
	default:
		return false
	}
}
