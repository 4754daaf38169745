// internal/relay/manager.go
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/taskrelay/internal/types"
)

// Manager owns the active relay sessions, one driver per monitored task.
// Session state is private to its driver; the manager only tracks liveness.
type Manager struct {
	source  types.EventSource
	channel Channel
	opts    Options

	mu       sync.Mutex
	sessions map[types.TaskID]context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager creates a Manager that builds drivers against the given source
// and channel.
func NewManager(source types.EventSource, channel Channel, opts Options) *Manager {
	return &Manager{
		source:   source,
		channel:  channel,
		opts:     opts,
		sessions: make(map[types.TaskID]context.CancelFunc),
	}
}

// Start launches a relay session for the task. Returns an error if one is
// already running for it.
func (m *Manager) Start(ctx context.Context, taskID types.TaskID, chatID int64, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.sessions[taskID]; running {
		return fmt.Errorf("relay already running for task %s", taskID)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	m.sessions[taskID] = cancel

	driver := NewDriver(taskID, chatID, label, m.source, m.channel, m.opts)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := driver.Run(sessCtx); err != nil {
			slog.Warn("relay session ended with error", "task_id", taskID, "error", err)
		}
		m.mu.Lock()
		delete(m.sessions, taskID)
		m.mu.Unlock()
	}()

	slog.Info("relay session started", "task_id", taskID, "chat_id", chatID)
	return nil
}

// Stop cancels the session for the task, if any. The driver finalizes
// cooperatively; this does not wait for it.
func (m *Manager) Stop(taskID types.TaskID) bool {
	m.mu.Lock()
	cancel, ok := m.sessions[taskID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a session is active for the task.
func (m *Manager) Running(taskID types.TaskID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[taskID]
	return ok
}

// Shutdown cancels all sessions and waits for their drivers to finalize.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.sessions {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
