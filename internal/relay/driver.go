// internal/relay/driver.go
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/taskrelay/internal/types"
)

// Options configures a relay session.
type Options struct {
	Debounce           time.Duration
	MaxMessageLength   int
	LengthMargin       int
	ThinkingPreviewLen int
	CompletionMarker   string
}

// DefaultOptions returns the stock relay settings: 500ms debounce, 4096
// channel maximum with 200 characters of wrapper headroom, 200-rune
// thinking previews.
func DefaultOptions() Options {
	return Options{
		Debounce:           500 * time.Millisecond,
		MaxMessageLength:   4096,
		LengthMargin:       200,
		ThinkingPreviewLen: 200,
		CompletionMarker:   "✅ done",
	}
}

// State is the driver lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateFinalizing
	StateClosed
)

// Driver relays one task's execution stream into one chat. It owns the
// stream subscription, the debounced flush loop, and finalization. Event
// intake and flushing run on separate goroutines so a slow channel call
// never stalls consumption.
type Driver struct {
	taskID  types.TaskID
	chatID  int64
	label   string
	source  types.EventSource
	channel Channel
	opts    Options

	formatter *Formatter
	tracker   *Tracker
	alloc     *Allocator
	gate      *FlushGate

	mu  sync.Mutex // guards buf between intake and flush
	buf Buffer

	kick  chan struct{}
	state State
}

// maxLabelRunes caps the session header so the wrapper can never eat the
// whole length margin.
const maxLabelRunes = 80

// NewDriver creates a Driver for one relay session.
func NewDriver(taskID types.TaskID, chatID int64, label string, source types.EventSource, channel Channel, opts Options) *Driver {
	d := &Driver{
		taskID:    taskID,
		chatID:    chatID,
		label:     clampLabel(label),
		source:    source,
		channel:   channel,
		opts:      opts,
		formatter: NewFormatter(opts.ThinkingPreviewLen),
		tracker:   NewTracker(),
		gate:      NewFlushGate(opts.Debounce),
		kick:      make(chan struct{}, 1),
		state:     StateIdle,
	}
	// Budget from the actual header so the rendered message stays under the
	// channel maximum; the margin keeps covering the completion marker.
	max := opts.MaxMessageLength - opts.LengthMargin - len(d.render(""))
	if max < 1 {
		max = 1
	}
	d.alloc = NewAllocator(max, d.render)
	return d
}

func clampLabel(label string) string {
	runes := []rune(label)
	if len(runes) <= maxLabelRunes {
		return label
	}
	return string(runes[:maxLabelRunes-1]) + "…"
}

// render wraps message content with the session header. Idempotent per
// content value; never trims.
func (d *Driver) render(content string) string {
	return "🤖 " + d.label + "\n\n" + content
}

// Run consumes the stream until it ends or ctx is cancelled, then finalizes.
// Blocks for the life of the session.
func (d *Driver) Run(ctx context.Context) error {
	events, err := d.source.Subscribe(ctx, d.taskID)
	if err != nil {
		return fmt.Errorf("subscribe to task stream: %w", err)
	}
	d.state = StateStreaming

	flushCtx, stopFlush := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.flushLoop(flushCtx)
	}()

intake:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break intake
			}
			d.observe(ev)
		case <-ctx.Done():
			break intake
		}
	}

	d.state = StateFinalizing
	stopFlush()
	wg.Wait()
	d.finalize(ctx)
	d.state = StateClosed
	return nil
}

// observe runs one event through the formatter and tracker, appending any
// newly completed entries to the buffer.
func (d *Driver) observe(ev *types.ExecutionEvent) {
	text, ok := d.formatter.Format(ev)
	if !ok {
		return
	}
	commits := d.tracker.Observe(ev.EntryIndex, ev.Kind, text)
	if len(commits) == 0 {
		return
	}
	d.append(commits)
}

func (d *Driver) append(commits []string) {
	d.mu.Lock()
	for _, text := range commits {
		d.buf.Append(text)
	}
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// flushLoop waits for buffer mutations and flushes them, at most once per
// debounce interval. Exits when ctx is cancelled; finalize picks up whatever
// is left.
func (d *Driver) flushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.kick:
		}

		if !d.gate.Ready() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.gate.Remaining()):
			}
		}

		d.flush(ctx)
		d.gate.Mark()
	}
}

// flush pushes the current buffer to the channel. Failures are logged and
// the buffer stays committed; the next flush retries from the same point.
func (d *Driver) flush(ctx context.Context) {
	d.mu.Lock()
	content := d.buf.String()
	d.mu.Unlock()

	if content == "" {
		return
	}
	if err := d.alloc.Flush(ctx, d.channel, d.chatID, content); err != nil {
		slog.Warn("relay flush failed", "task_id", d.taskID, "error", err)
	}
}

// finalize commits the pending tail, performs one unconditional flush, and
// appends the completion marker to the last message. Errors are logged only;
// shutdown never retries.
func (d *Driver) finalize(ctx context.Context) {
	if commits := d.tracker.Flush(); len(commits) > 0 {
		d.mu.Lock()
		for _, text := range commits {
			d.buf.Append(text)
		}
		d.mu.Unlock()
	}

	// The session's context may already be cancelled; finish on a detached
	// bounded context so the last edit is not torn mid-flight.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	d.mu.Lock()
	content := d.buf.String()
	d.mu.Unlock()

	if content != "" {
		if err := d.alloc.Flush(fctx, d.channel, d.chatID, content); err != nil {
			slog.Warn("terminal flush failed", "task_id", d.taskID, "error", err)
		}
	}
	if content == "" && len(d.alloc.Handles()) == 0 {
		return
	}
	if err := d.alloc.Finish(fctx, d.channel, d.chatID, content, d.opts.CompletionMarker); err != nil {
		slog.Warn("completion marker failed", "task_id", d.taskID, "error", err)
	}
}

// Handles returns the outbound message handles created so far.
func (d *Driver) Handles() []types.MessageHandle {
	return d.alloc.Handles()
}
