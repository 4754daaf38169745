// internal/relay/tracker.go
package relay

import (
	"sort"
	"strings"

	"github.com/user/taskrelay/internal/types"
)

// Tracker decides when an entry's content is final enough to commit to the
// outbound buffer. Entries arrive as successive revisions of the same index;
// the tracker holds the latest revision until a completion signal, so that
// readers never see mid-sentence fragments.
type Tracker struct {
	pending map[int64]string
	// committed keeps each index's last committed text so a redelivery of an
	// already-committed entry is recognized as a no-op.
	committed map[int64]string
	lastIndex int64
	seenAny   bool
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		pending:   make(map[int64]string),
		committed: make(map[int64]string),
	}
}

// Observe records the latest formatted text for the given entry index and
// returns zero or more texts that are now complete and must be appended to
// the outbound buffer, in order.
//
// An entry completes when its text ends with a newline or terminal
// punctuation, when its kind is atomic (tool use has no growing form), or
// when a strictly newer index arrives and abandons it.
func (t *Tracker) Observe(index int64, kind types.EventKind, text string) []string {
	var commits []string

	// A newer index means every older pending entry is abandoned; flush its
	// last known content even without terminal punctuation.
	if t.seenAny && index > t.lastIndex {
		if prev, ok := t.pending[t.lastIndex]; ok {
			commits = append(commits, prev)
			t.committed[t.lastIndex] = prev
			delete(t.pending, t.lastIndex)
		}
	}
	if !t.seenAny || index > t.lastIndex {
		t.lastIndex = index
		t.seenAny = true
	}

	// Unchanged re-delivery must not re-commit, whether the entry is still
	// pending or already committed.
	if prev, ok := t.pending[index]; ok && prev == text {
		return commits
	}
	if prev, ok := t.committed[index]; ok && prev == text {
		return commits
	}

	if kind == types.KindToolUse || isComplete(text) {
		t.committed[index] = text
		delete(t.pending, index)
		return append(commits, text)
	}

	t.pending[index] = text
	return commits
}

// Flush commits whatever is still pending, in index order. Called when the
// stream ends so that an unterminated trailing entry is not lost.
func (t *Tracker) Flush() []string {
	if len(t.pending) == 0 {
		return nil
	}
	indices := make([]int64, 0, len(t.pending))
	for idx := range t.pending {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	commits := make([]string, 0, len(indices))
	for _, idx := range indices {
		commits = append(commits, t.pending[idx])
		t.committed[idx] = t.pending[idx]
	}
	t.pending = make(map[int64]string)
	return commits
}

// isComplete reports whether text ends in a newline or terminal punctuation.
func isComplete(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, "\n") {
		return true
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
