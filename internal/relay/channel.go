// internal/relay/channel.go
package relay

import (
	"context"

	"github.com/user/taskrelay/internal/types"
)

// Channel is the outbound chat platform. Both calls may fail transiently;
// the relay logs failures and retries naturally on the next flush.
type Channel interface {
	Send(ctx context.Context, chatID int64, text string) (types.MessageHandle, error)
	Edit(ctx context.Context, chatID int64, handle types.MessageHandle, text string) error
}
