// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type TaskID string
type EventID string
type LinkToken string

// MessageHandle identifies a message previously sent to a chat channel.
// Opaque to the relay; the channel client knows how to target edits with it.
type MessageHandle string

func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

// NewEventID returns a lexicographically sortable event id so that ordering
// by id matches insertion order.
func NewEventID() EventID {
	return EventID(ulid.Make().String())
}

func NewLinkToken() LinkToken {
	return LinkToken(uuid.New().String())
}
