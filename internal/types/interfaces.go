// internal/types/interfaces.go
package types

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a lookup misses.
var ErrNotFound = errors.New("not found")

// EventSource exposes a task's execution stream as a replay-then-live
// subscription: the returned channel yields all retained history in order,
// then live events as they arrive, and is closed when the stream ends or
// the context is cancelled. The source is never mutated by consumers.
type EventSource interface {
	Subscribe(ctx context.Context, taskID TaskID) (<-chan *ExecutionEvent, error)
}

// TaskStore persists monitored tasks.
type TaskStore interface {
	Put(ctx context.Context, task *Task) error
	Get(ctx context.Context, id TaskID) (*Task, error)
	List(ctx context.Context) ([]*Task, error)
}
