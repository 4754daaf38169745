// internal/relay/format.go
package relay

import (
	"fmt"
	"strings"

	"github.com/user/taskrelay/internal/types"
)

// Formatter turns execution events into display lines. A returned false
// means the event carries nothing worth relaying.
type Formatter struct {
	// ThinkingPreviewLen bounds how much of a thinking entry is shown.
	// Display-only: overflow splitting is the buffer's job, not ours.
	ThinkingPreviewLen int
}

// NewFormatter returns a Formatter with the given thinking preview length.
func NewFormatter(thinkingPreviewLen int) *Formatter {
	return &Formatter{ThinkingPreviewLen: thinkingPreviewLen}
}

// Format renders one event. Pure: no side effects, no blocking.
func (f *Formatter) Format(ev *types.ExecutionEvent) (string, bool) {
	switch ev.Kind {
	case types.KindAssistant:
		text := strings.TrimSpace(ev.Content)
		if text == "" {
			return "", false
		}
		return text, true

	case types.KindThinking:
		text := strings.TrimSpace(ev.Content)
		if text == "" {
			return "", false
		}
		return "💭 " + f.truncateThinking(text), true

	case types.KindToolUse:
		return formatToolUse(ev.Action), true

	case types.KindError:
		text := strings.TrimSpace(ev.Content)
		if text == "" {
			return "", false
		}
		return "⚠️ " + text, true

	default:
		// Structural and unrecognized events are dropped.
		return "", false
	}
}

func (f *Formatter) truncateThinking(text string) string {
	limit := f.ThinkingPreviewLen
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "…"
}

// formatToolUse renders a single descriptive line for a tool invocation.
func formatToolUse(action *types.ToolAction) string {
	if action == nil {
		return "🔧 tool call"
	}
	switch {
	case action.Path != "":
		return fmt.Sprintf("🔧 %s %s", action.Tool, action.Path)
	case action.Command != "":
		return fmt.Sprintf("🔧 %s: %s", action.Tool, action.Command)
	case action.Query != "":
		return fmt.Sprintf("🔧 %s %q", action.Tool, action.Query)
	case action.URL != "":
		return fmt.Sprintf("🔧 %s %s", action.Tool, action.URL)
	case action.Tool != "":
		return "🔧 " + action.Tool
	default:
		return "🔧 tool call"
	}
}
