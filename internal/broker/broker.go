// Package broker abstracts the shared pub/sub and bounded-history store that
// fans messages across every gateway instance watching the same backend.
package broker

import "context"

// Handler receives the raw payload of one message delivered on a topic.
// Handlers for a given topic are invoked sequentially, in publish order.
type Handler func(payload []byte)

// Bridge is the narrow surface the channels consume. Messages published by
// any process sharing the backing store are delivered to subscribers,
// including the publishing process itself; there is no local-echo shortcut.
type Bridge interface {
	// Publish sends payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// SubscribeOnce registers fn for topic. It is idempotent: a second call
	// for an already-subscribed topic is a no-op and never causes duplicate
	// deliveries.
	SubscribeOnce(ctx context.Context, topic string, fn Handler) error

	// Unsubscribe tears down the topic subscription, if any.
	Unsubscribe(ctx context.Context, topic string) error

	// PushHistory prepends payload to the topic's bounded history list,
	// dropping the oldest entries beyond cap.
	PushHistory(ctx context.Context, topic string, payload []byte, cap int) error

	// RecentHistory returns up to limit history entries, most recent first.
	RecentHistory(ctx context.Context, topic string, limit int) ([][]byte, error)
}
