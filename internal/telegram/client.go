// internal/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/taskrelay/internal/relay"
	"github.com/user/taskrelay/internal/types"
)

// Client wraps the bot API as a relay channel. Stream sends and edits are
// plain text and deliberately not retried here; the relay's next flush is
// the retry. Command responses go through SendHTML with its own retry.
type Client struct {
	bot   *tgbotapi.BotAPI
	retry *RetryPolicy
}

// NewClient creates a Telegram client for the given bot token.
func NewClient(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Client{bot: bot, retry: DefaultRetryPolicy()}, nil
}

// Username returns the bot's username, for deep links.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// Send posts a new message and returns its handle.
func (c *Client) Send(_ context.Context, chatID int64, text string) (types.MessageHandle, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := c.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return types.MessageHandle(strconv.Itoa(sent.MessageID)), nil
}

// Edit replaces the content of a previously sent message.
func (c *Client) Edit(_ context.Context, chatID int64, handle types.MessageHandle, text string) error {
	messageID, err := strconv.Atoi(string(handle))
	if err != nil {
		return fmt.Errorf("bad message handle %q: %w", handle, err)
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := c.bot.Send(edit); err != nil {
		// Editing with identical content is not an error worth surfacing.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// SendHTML posts an HTML-formatted message, retrying transient failures.
func (c *Client) SendHTML(chatID int64, text string) error {
	return c.retry.Execute(func() error {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := c.bot.Send(msg); err != nil {
			return fmt.Errorf("send html message: %w", err)
		}
		return nil
	})
}

// GetUpdatesChan starts long polling for updates.
func (c *Client) GetUpdatesChan() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	return c.bot.GetUpdatesChan(u)
}

// StopReceivingUpdates stops long polling.
func (c *Client) StopReceivingUpdates() {
	c.bot.StopReceivingUpdates()
}

// escapeHTML escapes the characters Telegram's HTML parse mode treats
// specially.
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

var _ relay.Channel = (*Client)(nil)
