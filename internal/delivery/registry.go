// internal/delivery/registry.go
package delivery

import (
	"fmt"
	"sync"

	"github.com/user/taskrelay/internal/relay"
)

// Registry maps chat platform names to their channel clients, so relay
// sessions can target whichever platform a chat belongs to.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]relay.Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]relay.Channel),
	}
}

// Register adds a channel client under the given platform name.
func (r *Registry) Register(platform string, ch relay.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[platform] = ch
}

// Get returns the channel client for the platform.
func (r *Registry) Get(platform string) (relay.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[platform]
	if !ok {
		return nil, fmt.Errorf("no channel registered for platform: %s", platform)
	}
	return ch, nil
}
