// internal/relay/driver_test.go
package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/user/taskrelay/internal/types"
)

// fakeSource replays a fixed event sequence and ends the stream.
type fakeSource struct {
	events []*types.ExecutionEvent
}

func (s *fakeSource) Subscribe(_ context.Context, _ types.TaskID) (<-chan *types.ExecutionEvent, error) {
	ch := make(chan *types.ExecutionEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Debounce = 10 * time.Millisecond
	return opts
}

func ev(index int64, kind types.EventKind, content string) *types.ExecutionEvent {
	return &types.ExecutionEvent{
		ID:         types.NewEventID(),
		TaskID:     "task-1",
		EntryIndex: index,
		Kind:       kind,
		Content:    content,
		At:         time.Now(),
	}
}

// stripWrapper removes the session header the driver renders around content.
func stripWrapper(t *testing.T, label, msg string) string {
	t.Helper()
	prefix := "🤖 " + label + "\n\n"
	if !strings.HasPrefix(msg, prefix) {
		t.Fatalf("message missing wrapper: %q", msg)
	}
	return strings.TrimPrefix(msg, prefix)
}

func TestDriverRelaysCompletedEntries(t *testing.T) {
	src := &fakeSource{events: []*types.ExecutionEvent{
		ev(0, types.KindAssistant, "Let"),
		ev(0, types.KindAssistant, "Let me research"),
		ev(0, types.KindAssistant, "Let me research frameworks."),
		{ID: types.NewEventID(), TaskID: "task-1", EntryIndex: 1, Kind: types.KindToolUse,
			Action: &types.ToolAction{Tool: "read", Path: "foo.go"}, At: time.Now()},
	}}
	ch := newFakeChannel()

	d := NewDriver("task-1", 42, "Fix parser", src, ch, testOptions())
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(d.Handles()) != 1 {
		t.Fatalf("expected a single message, got %d", len(d.Handles()))
	}
	got := stripWrapper(t, "Fix parser", ch.content[ch.order[0]])
	want := "Let me research frameworks.\n🔧 read foo.go\n\n✅ done"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestDriverFlushesPendingTailAtStreamEnd(t *testing.T) {
	src := &fakeSource{events: []*types.ExecutionEvent{
		ev(7, types.KindAssistant, "trailing words without punctuation"),
	}}
	ch := newFakeChannel()

	d := NewDriver("task-1", 42, "Refactor", src, ch, testOptions())
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := stripWrapper(t, "Refactor", ch.content[ch.order[0]])
	if !strings.HasPrefix(got, "trailing words without punctuation") {
		t.Errorf("pending tail lost at stream end: %q", got)
	}
	if !strings.HasSuffix(got, "✅ done") {
		t.Errorf("expected completion marker last, got %q", got)
	}
}

func TestDriverNoMessagesForEmptyStream(t *testing.T) {
	src := &fakeSource{}
	ch := newFakeChannel()

	d := NewDriver("task-1", 42, "Quiet", src, ch, testOptions())
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(d.Handles()) != 0 {
		t.Errorf("expected no messages for an empty stream, got %d", len(d.Handles()))
	}
}

func TestDriverSplitsLongStream(t *testing.T) {
	opts := testOptions()
	opts.MaxMessageLength = 300
	opts.LengthMargin = 100

	var events []*types.ExecutionEvent
	for i := int64(0); i < 10; i++ {
		events = append(events, ev(i, types.KindAssistant, strings.Repeat("w", 60)+"."))
	}
	src := &fakeSource{events: events}
	ch := newFakeChannel()

	d := NewDriver("task-1", 42, "Long", src, ch, opts)
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(d.Handles()) < 2 {
		t.Fatalf("expected overflow into multiple messages, got %d", len(d.Handles()))
	}

	var rebuilt strings.Builder
	for _, h := range ch.order {
		rebuilt.WriteString(stripWrapper(t, "Long", ch.content[h]))
	}
	line := strings.Repeat("w", 60) + "."
	want := strings.Repeat(line+"\n", 9) + line + "\n\n✅ done"
	if rebuilt.String() != want {
		t.Errorf("concatenated messages do not reproduce the buffer\nwant %d chars\ngot  %d chars", len(want), rebuilt.Len())
	}
	for _, h := range ch.order {
		content := stripWrapper(t, "Long", ch.content[h])
		if len(content) > opts.MaxMessageLength-opts.LengthMargin {
			t.Errorf("message content exceeds budget: %d chars", len(content))
		}
	}
}

func TestDriverBoundsWrapperForLongLabels(t *testing.T) {
	opts := testOptions()
	opts.MaxMessageLength = 300
	opts.LengthMargin = 100

	var events []*types.ExecutionEvent
	for i := int64(0); i < 10; i++ {
		events = append(events, ev(i, types.KindAssistant, strings.Repeat("w", 60)+"."))
	}
	src := &fakeSource{events: events}
	ch := newFakeChannel()

	label := strings.Repeat("t", 500)
	d := NewDriver("task-1", 42, label, src, ch, opts)
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, h := range ch.order {
		if len(ch.content[h]) > opts.MaxMessageLength {
			t.Errorf("rendered message exceeds channel maximum: %d chars", len(ch.content[h]))
		}
		if !strings.HasPrefix(ch.content[h], "🤖 ") {
			t.Errorf("message missing wrapper: %q", ch.content[h])
		}
	}
}

func TestDriverSurvivesChannelFailure(t *testing.T) {
	src := &fakeSource{events: []*types.ExecutionEvent{
		ev(0, types.KindAssistant, "First sentence."),
	}}
	ch := newFakeChannel()
	ch.sendErr = context.DeadlineExceeded

	d := NewDriver("task-1", 42, "Flaky", src, ch, testOptions())
	// Must not return an error even when nothing can be delivered.
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
}
