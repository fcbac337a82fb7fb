package notify

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// PubSubNotifier publishes completion messages to a Google Cloud
// Pub/Sub topic.
type PubSubNotifier struct {
	publisher *pubsub.Publisher
}

// NewPubSub creates a notifier for the provided topic publisher.
func NewPubSub(publisher *pubsub.Publisher) *PubSubNotifier {
	return &PubSubNotifier{publisher: publisher}
}

// RunCompleted marshals the message to JSON and publishes it. The
// publish result is awaited so delivery failures surface to the caller.
func (n *PubSubNotifier) RunCompleted(ctx context.Context, msg CompletionMessage) error {
	if n.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal completion message: %w", err)
	}

	m := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":   msg.Kind,
			"status": msg.Status,
		},
	}
	result := n.publisher.Publish(ctx, m)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish completion message: %w", err)
	}
	return nil
}
