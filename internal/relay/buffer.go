// internal/relay/buffer.go
package relay

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/user/taskrelay/internal/types"
)

// Buffer accumulates committed entry texts in arrival order. Chunks are
// joined by a newline and, once appended, are never reordered or dropped;
// they leave the buffer only by being placed into an outbound message.
type Buffer struct {
	b strings.Builder
}

// Append adds one committed chunk.
func (b *Buffer) Append(text string) {
	if b.b.Len() > 0 {
		b.b.WriteByte('\n')
	}
	b.b.WriteString(text)
}

// String returns the full buffered content.
func (b *Buffer) String() string { return b.b.String() }

// Len returns the buffered content length in bytes.
func (b *Buffer) Len() int { return b.b.Len() }

// Allocator maps buffered content onto an ordered list of outbound messages.
// Only the newest message is ever edited; once content overflows into a new
// message, everything before the split point is sealed forever. Concatenating
// message contents in handle order reproduces the buffer, so nothing is ever
// truncated from the front to make room.
type Allocator struct {
	max    int // content budget per message, wrapper margin already subtracted
	render func(string) string

	handles  []types.MessageHandle
	sealed   int  // buffer offset already assigned to sealed messages
	open     bool // whether the last handle still accepts edits
	lastText string
}

// NewAllocator creates an Allocator with the given per-message content
// budget and render wrapper. render must be idempotent and must not trim.
func NewAllocator(max int, render func(string) string) *Allocator {
	if render == nil {
		render = func(s string) string { return s }
	}
	return &Allocator{max: max, render: render}
}

// Handles returns the outbound message handles in creation order.
func (a *Allocator) Handles() []types.MessageHandle {
	return a.handles
}

// Flush reconciles the full buffer content with the channel. Content beyond
// the current message's budget is sealed at a newline boundary and a fresh
// message is started for the remainder. On error the allocator state is left
// where it was, so the next flush retries from the same point.
func (a *Allocator) Flush(ctx context.Context, ch Channel, chatID int64, content string) error {
	tail := content[a.sealed:]

	for len(tail) > a.max {
		cut := splitPoint(tail, a.max)
		if err := a.put(ctx, ch, chatID, tail[:cut]); err != nil {
			return err
		}
		// Seal the current message: it will never be edited again.
		a.sealed += cut
		a.open = false
		a.lastText = ""
		tail = tail[cut:]
	}

	if len(tail) == 0 {
		return nil
	}
	return a.put(ctx, ch, chatID, tail)
}

// put writes text into the currently open message, creating one if needed.
func (a *Allocator) put(ctx context.Context, ch Channel, chatID int64, text string) error {
	rendered := a.render(text)
	if a.open {
		if rendered == a.lastText {
			return nil
		}
		last := a.handles[len(a.handles)-1]
		if err := ch.Edit(ctx, chatID, last, rendered); err != nil {
			return err
		}
		a.lastText = rendered
		return nil
	}
	handle, err := ch.Send(ctx, chatID, rendered)
	if err != nil {
		return err
	}
	a.handles = append(a.handles, handle)
	a.open = true
	a.lastText = rendered
	return nil
}

// Finish appends the completion marker to the last message only. If the
// session produced no messages at all, the marker is sent on its own.
func (a *Allocator) Finish(ctx context.Context, ch Channel, chatID int64, content, marker string) error {
	tail := content[a.sealed:]
	text := marker
	if tail != "" {
		text = tail + "\n\n" + marker
	}
	return a.put(ctx, ch, chatID, text)
}

// splitPoint returns the cut offset for a tail exceeding max: the position
// just past the last newline at or before max, or the nearest rune boundary
// at or before max when no newline exists. The hard cut looks lossy but is
// not; the remainder continues in the next message.
func splitPoint(tail string, max int) int {
	if idx := strings.LastIndexByte(tail[:max], '\n'); idx >= 0 {
		return idx + 1
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(tail[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}
