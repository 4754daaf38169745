// internal/execlog/log.go

// Package execlog stores task execution streams in sqlite and serves them
// to any number of independent subscribers. A subscription replays the
// retained history in order, then follows live events, and is closed when
// the stream's end marker is reached.
package execlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/taskrelay/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	entry_index INTEGER NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	action TEXT,
	at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_task_idx ON events(task_id, id);
`

// kindEnd is the internal end-of-stream row. It is never surfaced to
// subscribers; it closes their channels instead.
const kindEnd = "end"

type subscriber struct {
	taskID types.TaskID
	ch     chan *types.ExecutionEvent
	// lagged is signalled when a live event could not be buffered; the
	// subscriber then catches up from history instead of losing it.
	lagged chan struct{}
}

// Log is a sqlite-backed append-only event log with live fan-out.
type Log struct {
	db *sql.DB

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// Open opens (creating if needed) the event log at the given sqlite path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent appenders.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create event log schema: %w", err)
	}
	return &Log{db: db, subs: make(map[*subscriber]struct{})}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append stores one event and fans it out to live subscribers. Assigns the
// event id when empty; ids are ULIDs, so id order is insertion order.
func (l *Log) Append(ctx context.Context, ev *types.ExecutionEvent) error {
	if ev.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	if ev.ID == "" {
		ev.ID = types.NewEventID()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return l.insert(ctx, ev, string(ev.Kind))
}

// Finish appends the stream's end marker. Subscribers past the history see
// their channels close; later subscribers replay the history and then close
// immediately.
func (l *Log) Finish(ctx context.Context, taskID types.TaskID) error {
	ev := &types.ExecutionEvent{
		ID:     types.NewEventID(),
		TaskID: taskID,
		At:     time.Now().UTC(),
	}
	return l.insert(ctx, ev, kindEnd)
}

func (l *Log) insert(ctx context.Context, ev *types.ExecutionEvent, kind string) error {
	var action any
	if ev.Action != nil {
		data, err := json.Marshal(ev.Action)
		if err != nil {
			return fmt.Errorf("encode action: %w", err)
		}
		action = string(data)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO events (id, task_id, entry_index, kind, content, action, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(ev.ID), string(ev.TaskID), ev.EntryIndex, kind, ev.Content, action, ev.At.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	l.broadcast(ev, kind)
	return nil
}

func (l *Log) broadcast(ev *types.ExecutionEvent, kind string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for sub := range l.subs {
		if sub.taskID != ev.TaskID {
			continue
		}
		marked := *ev
		if kind == kindEnd {
			marked.Kind = kindEnd
		}
		select {
		case sub.ch <- &marked:
		default:
			// Buffer full. The event is already durable; tell the
			// subscriber to catch up from history.
			select {
			case sub.lagged <- struct{}{}:
			default:
			}
			slog.Warn("subscriber lagging, catching up from history", "task_id", ev.TaskID)
		}
	}
}

// Subscribe returns a channel that yields the task's retained history in
// order, then live events. The channel is closed at the stream's end marker
// or when ctx is cancelled. Multiple subscribers are independent.
func (l *Log) Subscribe(ctx context.Context, taskID types.TaskID) (<-chan *types.ExecutionEvent, error) {
	// Register for live events before reading history so nothing falls in
	// the gap; duplicates are filtered by id below.
	sub := &subscriber{
		taskID: taskID,
		ch:     make(chan *types.ExecutionEvent, 256),
		lagged: make(chan struct{}, 1),
	}
	l.mu.Lock()
	l.subs[sub] = struct{}{}
	l.mu.Unlock()

	history, ended, err := l.history(ctx, taskID)
	if err != nil {
		l.unsubscribe(sub)
		return nil, err
	}

	out := make(chan *types.ExecutionEvent, 64)
	go func() {
		defer l.unsubscribe(sub)
		defer close(out)

		var lastID types.EventID
		for _, ev := range history {
			lastID = ev.ID
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if ended {
			return
		}

		for {
			select {
			case ev := <-sub.ch:
				if ev.ID <= lastID {
					continue
				}
				lastID = ev.ID
				if string(ev.Kind) == kindEnd {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-sub.lagged:
				// Re-read everything past the watermark. Events still
				// queued in sub.ch are filtered by id afterwards.
				missed, ended, err := l.history(ctx, taskID)
				if err != nil {
					slog.Warn("catch-up read failed", "task_id", taskID, "error", err)
					return
				}
				for _, ev := range missed {
					if ev.ID <= lastID {
						continue
					}
					lastID = ev.ID
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
				if ended {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (l *Log) unsubscribe(sub *subscriber) {
	l.mu.Lock()
	delete(l.subs, sub)
	l.mu.Unlock()
}

// history loads all retained events for a task in insertion order, and
// reports whether the stream has already ended.
func (l *Log) history(ctx context.Context, taskID types.TaskID) ([]*types.ExecutionEvent, bool, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, entry_index, kind, content, action, at
		FROM events WHERE task_id = ? ORDER BY id ASC
	`, string(taskID))
	if err != nil {
		return nil, false, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []*types.ExecutionEvent
	ended := false
	for rows.Next() {
		var id, kind, content, atStr string
		var entryIndex int64
		var action sql.NullString
		if err := rows.Scan(&id, &entryIndex, &kind, &content, &action, &atStr); err != nil {
			return nil, false, fmt.Errorf("scan event: %w", err)
		}
		if kind == kindEnd {
			ended = true
			continue
		}
		ev := &types.ExecutionEvent{
			ID:         types.EventID(id),
			TaskID:     taskID,
			EntryIndex: entryIndex,
			Kind:       types.EventKind(kind),
			Content:    content,
		}
		ev.At, _ = time.Parse(time.RFC3339Nano, atStr)
		if action.Valid && action.String != "" {
			var a types.ToolAction
			if err := json.Unmarshal([]byte(action.String), &a); err == nil {
				ev.Action = &a
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate history: %w", err)
	}
	return out, ended, nil
}

// Count returns the number of retained events for a task, end marker excluded.
func (l *Log) Count(ctx context.Context, taskID types.TaskID) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE task_id = ? AND kind != ?
	`, string(taskID), kindEnd).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

var _ types.EventSource = (*Log)(nil)
