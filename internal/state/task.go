// internal/state/task.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/user/taskrelay/internal/types"
)

// TaskStore is a JSON-file-backed store for monitored tasks.
type TaskStore struct {
	path string
	mu   sync.RWMutex
}

// NewTaskStore creates a new file-backed TaskStore at the given file path.
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Path returns the file path used by this store.
func (s *TaskStore) Path() string {
	return s.path
}

// List returns all tasks, newest first. Returns an empty slice if the file
// doesn't exist.
func (s *TaskStore) List(_ context.Context) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		return []*types.Task{}, nil
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Get finds a task by id. Returns types.ErrNotFound if it doesn't exist.
func (s *TaskStore) Get(_ context.Context, id types.TaskID) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if task.ID == id {
			return task, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, types.ErrNotFound)
}

// Put inserts or replaces a task, stamping CreatedAt on first write.
func (s *TaskStore) Put(_ context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now()
	task.UpdatedAt = now
	replaced := false
	for i, existing := range tasks {
		if existing.ID == task.ID {
			task.CreatedAt = existing.CreatedAt
			tasks[i] = task
			replaced = true
			break
		}
	}
	if !replaced {
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
		tasks = append(tasks, task)
	}

	return s.save(tasks)
}

func (s *TaskStore) load() ([]*types.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task store: %w", err)
	}
	var tasks []*types.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("unmarshal task store: %w", err)
	}
	return tasks, nil
}

// save marshals with indentation and writes atomically.
func (s *TaskStore) save(tasks []*types.Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp task store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename task store: %w", err)
	}
	return nil
}

var _ types.TaskStore = (*TaskStore)(nil)
