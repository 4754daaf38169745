// internal/types/models.go
package types

import "time"

// EventKind classifies an execution event.
type EventKind string

const (
	KindAssistant EventKind = "assistant"
	KindThinking  EventKind = "thinking"
	KindToolUse   EventKind = "tool_use"
	KindError     EventKind = "error"
	KindOther     EventKind = "other"
)

// ToolAction describes what a tool invocation operated on. At most one of
// the location fields is normally set; all may be empty.
type ToolAction struct {
	Tool    string `json:"tool"`
	Path    string `json:"path,omitempty"`
	Command string `json:"command,omitempty"`
	Query   string `json:"query,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ExecutionEvent is one update from a running task's output stream.
//
// EntryIndex identifies the logical line this update belongs to. The same
// index may be re-emitted with longer content until the line is finished;
// once a strictly greater index appears the old index is never revisited.
type ExecutionEvent struct {
	ID         EventID     `json:"id"`
	TaskID     TaskID      `json:"task_id"`
	EntryIndex int64       `json:"entry_index"`
	Kind       EventKind   `json:"kind"`
	Content    string      `json:"content,omitempty"`
	Action     *ToolAction `json:"action,omitempty"`
	At         time.Time   `json:"at"`
}

// TaskStatus is the lifecycle state of a monitored task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "inprogress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task is a monitored background task whose execution stream can be relayed.
type Task struct {
	ID          TaskID     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
