// Package channel translates domain objects to and from wire payloads,
// drives the broker bridge, and maintains per-broadcast bounded history.
// Chat and match events are two instantiations of the same pattern over
// separate topics; only events are additionally persisted for audit.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"courtside/internal/broker"
	"courtside/internal/live"
)

// ChatTopic and EventTopic name the broker topics for one broadcast.
func ChatTopic(liveID string) string  { return "chat:" + liveID }
func EventTopic(liveID string) string { return "events:" + liveID }

// ChatChannel fans chat messages through the bridge and keeps a capped
// recent-messages list per broadcast.
type ChatChannel struct {
	bridge     broker.Bridge
	log        *slog.Logger
	historyCap int
}

func NewChat(bridge broker.Bridge, historyCap int, log *slog.Logger) *ChatChannel {
	return &ChatChannel{
		bridge:     bridge,
		log:        log.With(slog.String("comp", "chat-channel")),
		historyCap: historyCap,
	}
}

// Publish sends msg to every subscriber of the broadcast and appends it to
// history. A history write failure is logged and does not fail the publish.
func (c *ChatChannel) Publish(ctx context.Context, liveID string, msg live.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	topic := ChatTopic(liveID)
	if err := c.bridge.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish chat: %w", err)
	}
	if err := c.bridge.PushHistory(ctx, topic, payload, c.historyCap); err != nil {
		c.log.Warn("push chat history", slog.String("live", liveID), slog.Any("err", err))
	}
	return nil
}

// Subscribe registers fn for the broadcast's chat topic. Malformed payloads
// are logged and skipped.
func (c *ChatChannel) Subscribe(ctx context.Context, liveID string, fn func(live.ChatMessage)) error {
	return c.bridge.SubscribeOnce(ctx, ChatTopic(liveID), func(payload []byte) {
		var msg live.ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Warn("skip malformed chat payload", slog.String("live", liveID), slog.Any("err", err))
			return
		}
		fn(msg)
	})
}

func (c *ChatChannel) Unsubscribe(ctx context.Context, liveID string) error {
	return c.bridge.Unsubscribe(ctx, ChatTopic(liveID))
}

// Recent returns up to limit chat messages, most recent first. Entries that
// fail to decode are skipped with a warning.
func (c *ChatChannel) Recent(ctx context.Context, liveID string, limit int) ([]live.ChatMessage, error) {
	raw, err := c.bridge.RecentHistory(ctx, ChatTopic(liveID), limit)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	out := make([]live.ChatMessage, 0, len(raw))
	for _, p := range raw {
		var msg live.ChatMessage
		if err := json.Unmarshal(p, &msg); err != nil {
			c.log.Warn("skip malformed chat history entry", slog.String("live", liveID), slog.Any("err", err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}
