package interfaces

import (
	"context"

	domaintypes "wcsign/internal/domain/types"
)

// Relay is the publish/subscribe collaborator. Delivery is at-least-once and
// may duplicate messages.
type Relay interface {
	Publish(ctx context.Context, topic domaintypes.Topic, message string, opts domaintypes.PublishOptions) error
	Subscribe(ctx context.Context, topic domaintypes.Topic) error
	Unsubscribe(ctx context.Context, topic domaintypes.Topic) error
	Messages() <-chan domaintypes.RelayMessage
}
