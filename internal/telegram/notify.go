// internal/telegram/notify.go
package telegram

import (
	"fmt"
	"log/slog"

	"github.com/user/taskrelay/internal/config"
	"github.com/user/taskrelay/internal/types"
)

// Sender posts HTML-formatted messages to a chat. Implemented by Client.
type Sender interface {
	SendHTML(chatID int64, text string) error
}

// Notifier sends task completion notifications, honoring the user's
// notification settings.
type Notifier struct {
	cfg    *config.Store
	sender Sender
}

// NewNotifier creates a Notifier.
func NewNotifier(cfg *config.Store, sender Sender) *Notifier {
	return &Notifier{cfg: cfg, sender: sender}
}

// TaskDone notifies the linked chat that a task finished. The summary is
// included only when the settings ask for it. Best effort: failures are
// logged, never returned.
func (n *Notifier) TaskDone(task *types.Task, summary string) {
	cfg := n.cfg.Get()
	if !cfg.Telegram.NotificationsEnabled || !cfg.Telegram.NotifyOnTaskDone {
		slog.Debug("task notifications disabled, skipping", "task_id", task.ID)
		return
	}
	if !cfg.Linked() {
		slog.Debug("no linked chat, skipping notification", "task_id", task.ID)
		return
	}

	message := fmt.Sprintf("✅ <b>Task Completed</b>\n\n<b>%s</b>", escapeHTML(task.Title))
	if cfg.Telegram.IncludeSummary && summary != "" {
		message += "\n\n<b>Summary:</b>\n" + escapeHTML(summary)
	}

	if err := n.sender.SendHTML(cfg.Telegram.ChatID, message); err != nil {
		slog.Warn("task notification failed", "task_id", task.ID, "error", err)
	}
}
