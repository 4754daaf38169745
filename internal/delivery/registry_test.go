// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"testing"

	"github.com/user/taskrelay/internal/types"
)

type nopChannel struct{}

func (nopChannel) Send(context.Context, int64, string) (types.MessageHandle, error) {
	return "h", nil
}
func (nopChannel) Edit(context.Context, int64, types.MessageHandle, string) error {
	return nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("telegram", nopChannel{})

	if _, err := r.Get("telegram"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("slack"); err == nil {
		t.Error("expected error for unregistered platform")
	}
}
