package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"courtside/internal/broker"
	"courtside/internal/live"
)

// EventSink receives published match events for durable audit. Implemented
// by storage.EventStore; nil disables persistence.
type EventSink interface {
	Save(ctx context.Context, ev live.MatchEvent) error
}

const persistTimeout = 5 * time.Second

// EventChannel fans structured match events through the bridge, keeps a
// capped history per broadcast, and mirrors each event to the audit sink.
type EventChannel struct {
	bridge     broker.Bridge
	sink       EventSink
	log        *slog.Logger
	historyCap int
}

func NewEvents(bridge broker.Bridge, sink EventSink, historyCap int, log *slog.Logger) *EventChannel {
	return &EventChannel{
		bridge:     bridge,
		sink:       sink,
		log:        log.With(slog.String("comp", "event-channel")),
		historyCap: historyCap,
	}
}

// Publish sends ev to every subscriber, appends it to history, and persists
// it asynchronously. History and persistence failures are logged; neither
// gates live delivery.
func (c *EventChannel) Publish(ctx context.Context, ev live.MatchEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode match event: %w", err)
	}
	topic := EventTopic(ev.LiveID)
	if err := c.bridge.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	if err := c.bridge.PushHistory(ctx, topic, payload, c.historyCap); err != nil {
		c.log.Warn("push event history", slog.String("live", ev.LiveID), slog.Any("err", err))
	}

	if c.sink != nil {
		// Fire and forget; the publisher has already returned by the time
		// the audit write lands or fails.
		go func(ev live.MatchEvent) {
			pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := c.sink.Save(pctx, ev); err != nil {
				c.log.Error("persist match event",
					slog.String("live", ev.LiveID),
					slog.String("event", ev.ID),
					slog.Any("err", err))
			}
		}(ev)
	}
	return nil
}

// Subscribe registers fn for the broadcast's event topic. Malformed payloads
// are logged and skipped.
func (c *EventChannel) Subscribe(ctx context.Context, liveID string, fn func(live.MatchEvent)) error {
	return c.bridge.SubscribeOnce(ctx, EventTopic(liveID), func(payload []byte) {
		var ev live.MatchEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.Warn("skip malformed event payload", slog.String("live", liveID), slog.Any("err", err))
			return
		}
		fn(ev)
	})
}

func (c *EventChannel) Unsubscribe(ctx context.Context, liveID string) error {
	return c.bridge.Unsubscribe(ctx, EventTopic(liveID))
}

// Recent returns up to limit match events, most recent first, skipping
// entries that fail to decode.
func (c *EventChannel) Recent(ctx context.Context, liveID string, limit int) ([]live.MatchEvent, error) {
	raw, err := c.bridge.RecentHistory(ctx, EventTopic(liveID), limit)
	if err != nil {
		return nil, fmt.Errorf("event history: %w", err)
	}
	out := make([]live.MatchEvent, 0, len(raw))
	for _, p := range raw {
		var ev live.MatchEvent
		if err := json.Unmarshal(p, &ev); err != nil {
			c.log.Warn("skip malformed event history entry", slog.String("live", liveID), slog.Any("err", err))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
