// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewTaskID(t *testing.T) {
	id := NewTaskID()
	if id == "" {
		t.Error("expected non-empty TaskID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestNewEventIDSortable(t *testing.T) {
	a := NewEventID()
	b := NewEventID()
	if len(string(a)) != 26 {
		t.Errorf("expected ULID format, got %s", a)
	}
	if string(b) < string(a) {
		t.Errorf("expected ids to sort by creation order, got %s before %s", b, a)
	}
}
