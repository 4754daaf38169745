// internal/telegram/commands.go
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/taskrelay/internal/config"
	"github.com/user/taskrelay/internal/linker"
	"github.com/user/taskrelay/internal/relay"
	"github.com/user/taskrelay/internal/types"
)

// Commands handles bot slash commands. Responses are HTML-formatted
// strings; an empty response means nothing to send.
type Commands struct {
	cfg     *config.Store
	linker  *linker.Linker
	tasks   types.TaskStore
	manager *relay.Manager

	// sessionCtx outlives individual updates; relay sessions started from
	// /watch are bound to it, not to the update that triggered them.
	sessionCtx context.Context
}

// NewCommands creates the command handler.
func NewCommands(sessionCtx context.Context, cfg *config.Store, lk *linker.Linker, tasks types.TaskStore, manager *relay.Manager) *Commands {
	return &Commands{
		cfg:        cfg,
		linker:     lk,
		tasks:      tasks,
		manager:    manager,
		sessionCtx: sessionCtx,
	}
}

// Handle processes one message and returns the response text, or "" when
// no response is warranted.
func (h *Commands) Handle(ctx context.Context, msg *tgbotapi.Message) string {
	if msg == nil || !msg.IsCommand() {
		return ""
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		return h.cmdStart(msg, args)
	case "help":
		return h.cmdHelp()
	case "tasks":
		return h.cmdTasks(ctx)
	case "newtask":
		return h.cmdNewTask(ctx, args)
	case "task":
		return h.cmdTask(ctx, args)
	case "watch":
		return h.cmdWatch(ctx, msg.Chat.ID, args)
	case "stop":
		return h.cmdStop(ctx, args)
	default:
		return fmt.Sprintf("Unknown command: /%s. Use /help to see available commands.", msg.Command())
	}
}

// cmdStart handles /start, completing an account link when a token is given.
func (h *Commands) cmdStart(msg *tgbotapi.Message, args string) string {
	if args != "" {
		switch err := h.linker.Consume(types.LinkToken(args)); err {
		case nil:
		case linker.ErrTokenExpired:
			return "❌ This link has expired. Please generate a new link from the web interface."
		default:
			return "❌ Invalid or expired link token. Please generate a new link from the web interface."
		}

		var username string
		if msg.From != nil {
			username = msg.From.UserName
		}
		err := h.cfg.Update(func(c *config.Config) {
			c.Telegram.ChatID = msg.Chat.ID
			if msg.From != nil {
				c.Telegram.UserID = msg.From.ID
			}
			c.Telegram.Username = username
			c.Telegram.NotificationsEnabled = true
			c.Telegram.NotifyOnTaskDone = true
		})
		if err != nil {
			slog.Error("save config after link failed", "error", err)
		}

		greeting := ""
		if username != "" {
			greeting = ", @" + escapeHTML(username)
		}
		return fmt.Sprintf("✅ <b>Account linked successfully!</b>\n\nWelcome%s! You will now receive task notifications and live streams.", greeting)
	}

	return `👋 <b>Welcome to the task relay bot!</b>

I stream live output of your background tasks and notify you when they finish.

<b>Available commands:</b>
/help - Show all commands
/tasks - List monitored tasks
/task &lt;id&gt; - Get task details
/watch &lt;id&gt; - Stream a task's live output here
/stop &lt;id&gt; - Stop streaming a task

To link your account, use the link from the web interface.`
}

func (h *Commands) cmdHelp() string {
	return `<b>Task Relay Bot Commands</b>

<b>Account:</b>
/start - Welcome message &amp; account linking

<b>Tasks:</b>
/tasks - List monitored tasks
/task &lt;id&gt; - Get task details
/newtask &lt;title&gt; - Create a task

<b>Streaming:</b>
/watch &lt;id&gt; - Relay the task's live output into this chat
/stop &lt;id&gt; - Stop the relay for a task

<b>Notes:</b>
- Task IDs are UUIDs; a unique prefix works too`
}

func (h *Commands) cmdTasks(ctx context.Context) string {
	tasks, err := h.tasks.List(ctx)
	if err != nil {
		slog.Error("list tasks failed", "error", err)
		return "Error fetching tasks."
	}
	if len(tasks) == 0 {
		return "No tasks yet."
	}

	var b strings.Builder
	b.WriteString("<b>Monitored tasks:</b>\n\n")
	shown := tasks
	if len(shown) > 20 {
		shown = shown[:20]
	}
	for _, task := range shown {
		fmt.Fprintf(&b, "%s <b>%s</b>\n  <code>%s</code>\n\n", statusEmoji(task.Status), escapeHTML(task.Title), task.ID)
	}
	if len(tasks) > 20 {
		fmt.Fprintf(&b, "... and %d more tasks", len(tasks)-20)
	}
	return b.String()
}

// cmdNewTask creates a monitored task from the message text.
func (h *Commands) cmdNewTask(ctx context.Context, args string) string {
	if args == "" {
		return "Usage: /newtask <title>"
	}

	task := &types.Task{
		ID:     types.NewTaskID(),
		Title:  args,
		Status: types.TaskStatusTodo,
	}
	if err := h.tasks.Put(ctx, task); err != nil {
		slog.Error("create task failed", "error", err)
		return "Error creating task."
	}
	return fmt.Sprintf("📋 Created <b>%s</b>\n<code>%s</code>", escapeHTML(task.Title), task.ID)
}

func (h *Commands) cmdTask(ctx context.Context, args string) string {
	if args == "" {
		return "Usage: /task <task_id>"
	}
	task, err := h.findTask(ctx, args)
	if err != nil {
		return escapeHTML(err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\nStatus: %s %s\nID: <code>%s</code>", escapeHTML(task.Title), statusEmoji(task.Status), task.Status, task.ID)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n\n<b>Description:</b>\n%s", escapeHTML(task.Description))
	}
	return b.String()
}

func (h *Commands) cmdWatch(ctx context.Context, chatID int64, args string) string {
	if args == "" {
		return "Usage: /watch <task_id>"
	}
	cfg := h.cfg.Get()
	if !cfg.Linked() {
		return "Link your account first; use the link from the web interface."
	}
	if !cfg.Telegram.StreamEnabled {
		return "Streaming is disabled in the settings."
	}

	task, err := h.findTask(ctx, args)
	if err != nil {
		return escapeHTML(err.Error())
	}
	if err := h.manager.Start(h.sessionCtx, task.ID, chatID, task.Title); err != nil {
		return escapeHTML(err.Error())
	}
	return fmt.Sprintf("📡 Streaming <b>%s</b> into this chat.", escapeHTML(task.Title))
}

func (h *Commands) cmdStop(ctx context.Context, args string) string {
	if args == "" {
		return "Usage: /stop <task_id>"
	}
	task, err := h.findTask(ctx, args)
	if err != nil {
		return escapeHTML(err.Error())
	}
	if !h.manager.Stop(task.ID) {
		return "No active stream for that task."
	}
	return fmt.Sprintf("Stopped streaming <b>%s</b>.", escapeHTML(task.Title))
}

// findTask resolves a full task id or a unique prefix.
func (h *Commands) findTask(ctx context.Context, arg string) (*types.Task, error) {
	arg = strings.TrimSpace(arg)
	if task, err := h.tasks.Get(ctx, types.TaskID(arg)); err == nil {
		return task, nil
	}

	tasks, err := h.tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var match *types.Task
	for _, task := range tasks {
		if strings.HasPrefix(string(task.ID), arg) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous task id prefix: %s", arg)
			}
			match = task
		}
	}
	if match == nil {
		return nil, fmt.Errorf("task not found: %s", arg)
	}
	return match, nil
}

func statusEmoji(status types.TaskStatus) string {
	switch status {
	case types.TaskStatusTodo:
		return "📋"
	case types.TaskStatusInProgress:
		return "🔄"
	case types.TaskStatusDone:
		return "✅"
	case types.TaskStatusCancelled:
		return "❌"
	default:
		return "•"
	}
}
