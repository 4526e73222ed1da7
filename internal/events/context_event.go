package events

// ContextEvent stamps a raw Event with the context and task it belongs to,
// plus a breadcrumb path accumulated as it bubbles up through nested
// runners (§4.1). A ContextEvent whose ParentTaskID is set belongs to a
// child task and must not contribute messages to the parent loop's history
// (§4.6).
type ContextEvent struct {
	Event
	ContextID    string   `json:"contextId"`
	TaskID       string   `json:"taskId"`
	ParentTaskID string   `json:"parentTaskId,omitempty"`
	Path         []string `json:"path,omitempty"`
}

// Stamp wraps a raw Event into a ContextEvent for the given context/task.
func Stamp(e Event, contextID, taskID string) ContextEvent {
	return ContextEvent{Event: e, ContextID: contextID, TaskID: taskID}
}

// WithPath returns a copy of ce with name prepended to its breadcrumb path.
func (ce ContextEvent) WithPath(name string) ContextEvent {
	path := make([]string, 0, len(ce.Path)+1)
	path = append(path, name)
	path = append(path, ce.Path...)
	ce.Path = path
	return ce
}

// IsChildTaskEvent reports whether ce belongs to a subtask rather than the
// task identified by ce.TaskID's parent loop.
func (ce ContextEvent) IsChildTaskEvent() bool {
	return ce.ParentTaskID != ""
}

// IsExternal reports whether ce should ever reach an external (UI/client)
// stream. Internal events are excluded (§4.1).
func (ce ContextEvent) IsExternal() bool {
	return !IsInternal(ce.EventKind())
}
