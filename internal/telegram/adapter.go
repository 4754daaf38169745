// internal/telegram/adapter.go
package telegram

import (
	"context"
	"log/slog"
)

// Adapter long-polls Telegram for updates and routes messages through the
// command handler. An alternative to the webhook endpoint for deployments
// without a public URL.
type Adapter struct {
	client   *Client
	commands *Commands
}

// NewAdapter creates a long-polling adapter.
func NewAdapter(client *Client, commands *Commands) *Adapter {
	return &Adapter{client: client, commands: commands}
}

// Start begins long-polling for Telegram updates. Blocks until ctx ends.
func (a *Adapter) Start(ctx context.Context) {
	updates := a.client.GetUpdatesChan()

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			response := a.commands.Handle(ctx, update.Message)
			if response == "" {
				continue
			}
			if err := a.client.SendHTML(update.Message.Chat.ID, response); err != nil {
				slog.Error("send command response failed", "error", err)
			}
		case <-ctx.Done():
			a.client.StopReceivingUpdates()
			return
		}
	}
}
