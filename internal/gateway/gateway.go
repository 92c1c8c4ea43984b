// Package gateway is the connection-facing core: it reconciles session
// lifecycle with room membership, opens the broker subscription for a room
// on first join and closes it on last leave, rate-limits chat, and fans
// published messages out to every session currently in the room.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"courtside/internal/channel"
	"courtside/internal/live"
	"courtside/internal/ratelimit"
	"courtside/internal/rooms"
)

type Gateway struct {
	log      *slog.Logger
	registry *rooms.Registry
	chat     *channel.ChatChannel
	events   *channel.EventChannel
	limiter  *ratelimit.Limiter
	replay   int // match events pushed to a joining session

	mu       sync.RWMutex
	sessions map[string]*Session

	// ioMu guards roomIO: one mutex per room serializing bridge
	// subscribe/unsubscribe, so membership transitions can never apply
	// their I/O out of decision order.
	ioMu   sync.Mutex
	roomIO map[string]*sync.Mutex
}

func New(registry *rooms.Registry, chat *channel.ChatChannel, events *channel.EventChannel, limiter *ratelimit.Limiter, replay int, log *slog.Logger) *Gateway {
	return &Gateway{
		log:      log.With(slog.String("comp", "gateway")),
		registry: registry,
		chat:     chat,
		events:   events,
		limiter:  limiter,
		replay:   replay,
		sessions: make(map[string]*Session),
		roomIO:   make(map[string]*sync.Mutex),
	}
}

// roomIOLock returns the mutex serializing bridge I/O for one room. Entries
// persist for the life of the process so a lock can never vanish while a
// goroutine waits on it; the footprint is one mutex per broadcast ever
// watched.
func (g *Gateway) roomIOLock(liveID string) *sync.Mutex {
	g.ioMu.Lock()
	defer g.ioMu.Unlock()
	mu := g.roomIO[liveID]
	if mu == nil {
		mu = &sync.Mutex{}
		g.roomIO[liveID] = mu
	}
	return mu
}

// reconcileRoom matches the broker subscription to the room's current
// membership. A transition can decide faster than the bridge I/O behind the
// previous transition completes; if a room empties and refills while the
// unsubscribe is still in flight, applying the stale decision would strand
// an occupied room without a subscription. Serializing the I/O per room and
// re-reading the desired state under that lock makes stale operations
// corrective instead of destructive. The membership lock is never held here.
func (g *Gateway) reconcileRoom(ctx context.Context, liveID string) {
	mu := g.roomIOLock(liveID)
	mu.Lock()
	defer mu.Unlock()

	if g.registry.Subscribed(liveID) {
		if err := g.events.Subscribe(ctx, liveID, func(ev live.MatchEvent) {
			g.deliver(liveID, msgMatchEvent, ev, ev.ID)
		}); err != nil {
			g.log.Error("subscribe events", slog.String("live", liveID), slog.Any("err", err))
		}
		if err := g.chat.Subscribe(ctx, liveID, func(msg live.ChatMessage) {
			g.fanout(liveID, msgChatMessage, msg)
		}); err != nil {
			g.log.Error("subscribe chat", slog.String("live", liveID), slog.Any("err", err))
		}
		return
	}

	if err := g.events.Unsubscribe(ctx, liveID); err != nil {
		g.log.Error("unsubscribe events", slog.String("live", liveID), slog.Any("err", err))
	}
	if err := g.chat.Unsubscribe(ctx, liveID); err != nil {
		g.log.Error("unsubscribe chat", slog.String("live", liveID), slog.Any("err", err))
	}
}

// OnConnect registers a freshly opened session with no room memberships.
func (g *Gateway) OnConnect(s *Session) {
	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()
	g.log.Debug("session connected", slog.String("session", s.ID))
}

// OnJoin puts the session into liveID's room. The first session of a room
// opens the broker subscriptions with fan-out callbacks that resolve the
// member list at delivery time, so later joiners receive subsequent
// messages without re-subscribing. Every join replays recent match events
// to the joining session only; re-joining the same room is acknowledged but
// triggers neither a second subscription nor a second replay.
func (g *Gateway) OnJoin(ctx context.Context, s *Session, liveID string) {
	if liveID == "" {
		return
	}
	if !s.trackRoom(liveID) {
		g.enqueueMsg(s, msgJoinedLive, roomAck{LiveID: liveID})
		return
	}

	if g.registry.Join(liveID, s.ID) {
		g.reconcileRoom(ctx, liveID)
		g.log.Info("room activated", slog.String("live", liveID))
	}

	g.enqueueMsg(s, msgJoinedLive, roomAck{LiveID: liveID})

	history, err := g.events.Recent(ctx, liveID, g.replay)
	if err != nil {
		g.log.Warn("replay event history", slog.String("live", liveID), slog.Any("err", err))
		history = nil
	}
	// An event published between the membership registration above and the
	// history read lands both in the live stream and in the snapshot; drop
	// it from the replay so the joiner sees exactly one copy.
	seen := s.takePendingReplay(liveID)
	if len(seen) > 0 {
		filtered := make([]live.MatchEvent, 0, len(history))
		for _, ev := range history {
			if _, dup := seen[ev.ID]; !dup {
				filtered = append(filtered, ev)
			}
		}
		history = filtered
	}
	if history == nil {
		history = []live.MatchEvent{}
	}
	g.enqueueMsg(s, msgEventsHistory, history)
}

// OnLeave removes the session from liveID's room; the last session out
// tears the broker subscriptions down.
func (g *Gateway) OnLeave(ctx context.Context, s *Session, liveID string) {
	if !s.untrackRoom(liveID) {
		return
	}
	g.leaveRoom(ctx, s, liveID)
	g.enqueueMsg(s, msgLeftLive, roomAck{LiveID: liveID})
}

func (g *Gateway) leaveRoom(ctx context.Context, s *Session, liveID string) {
	if !g.registry.Leave(liveID, s.ID) {
		return
	}
	g.reconcileRoom(ctx, liveID)
	g.log.Info("room drained", slog.String("live", liveID))
}

// OnDisconnect leaves every room the session joined, unregisters it, and
// closes it. Removal happens before Close so no fan-out attempts delivery
// to a destroyed session.
func (g *Gateway) OnDisconnect(ctx context.Context, s *Session) {
	for _, liveID := range s.takeRooms() {
		g.leaveRoom(ctx, s, liveID)
	}

	g.mu.Lock()
	delete(g.sessions, s.ID)
	g.mu.Unlock()
	s.Close()

	// Disconnects double as the cleanup pass for stale rate entries.
	g.limiter.Sweep()
	g.log.Debug("session disconnected", slog.String("session", s.ID))
}

// OnChatSend publishes a chat message from the session. Whitespace-only
// input is dropped silently; a rate-limited sender gets a notice with a
// retry hint and nothing is published. The sender receives its own message
// back through the normal subscription fan-out, never via a local echo.
func (g *Gateway) OnChatSend(ctx context.Context, s *Session, liveID, userID, userName, message string) {
	trimmed := strings.TrimSpace(message)
	if liveID == "" || userID == "" || trimmed == "" {
		return
	}

	if !g.limiter.Allow(userID) {
		retry := int(math.Ceil(g.limiter.RetryAfter(userID).Seconds()))
		g.enqueueMsg(s, msgRateLimitExceeded, rateLimitNotice{
			Message:    "too many messages, slow down",
			RetryAfter: retry,
		})
		return
	}

	msg := live.ChatMessage{
		UserID:    userID,
		UserName:  userName,
		Message:   trimmed,
		Timestamp: time.Now().UTC(),
	}
	if err := g.chat.Publish(ctx, liveID, msg); err != nil {
		// Degrade silently toward the sender; the failure is an operator
		// concern, not a client one.
		g.log.Error("publish chat", slog.String("live", liveID), slog.Any("err", err))
	}
	g.enqueueMsg(s, msgChatMessageSent, chatAck{Success: true})
}

// PublishEvent validates and publishes a structured match event. This is
// the ingestion entry point for the broadcast-lifecycle collaborator.
func (g *Gateway) PublishEvent(ctx context.Context, ev live.MatchEvent) error {
	if ev.LiveID == "" {
		return fmt.Errorf("match event missing liveId")
	}
	if !ev.Type.Valid() {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return g.events.Publish(ctx, ev)
}

// BroadcastSystemEvent pushes a status transition to every session in the
// room, bypassing the channel machinery: live-only, no history, no audit.
func (g *Gateway) BroadcastSystemEvent(liveID, eventType string, data map[string]any) {
	g.fanout(liveID, msgLiveEvent, live.SystemEvent{
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// RecentChat serves the pull-based chat history read path. Unlike match
// events, chat history is never pushed on join.
func (g *Gateway) RecentChat(ctx context.Context, liveID string, limit int) ([]live.ChatMessage, error) {
	return g.chat.Recent(ctx, liveID, limit)
}

// fanout delivers one message to every session currently in the room. The
// member list is resolved now, not at subscribe time; a session that
// vanished since is skipped, and one slow or dead session never blocks the
// rest.
func (g *Gateway) fanout(liveID, typ string, data any) {
	g.deliver(liveID, typ, data, "")
}

// deliver is fanout with an optional event id. When the id is set, each
// recipient mid-join records it so the replay snapshot can skip an event
// the session already received live.
func (g *Gateway) deliver(liveID, typ string, data any, eventID string) {
	payload, err := json.Marshal(outbound{Type: typ, Data: data})
	if err != nil {
		g.log.Error("marshal fan-out payload", slog.String("type", typ), slog.Any("err", err))
		return
	}

	for _, id := range g.registry.Members(liveID) {
		g.mu.RLock()
		s := g.sessions[id]
		g.mu.RUnlock()
		if s == nil {
			continue
		}
		if eventID != "" {
			s.noteLiveEvent(liveID, eventID)
		}
		if !s.Enqueue(payload) {
			g.log.Debug("fan-out dropped",
				slog.String("live", liveID),
				slog.String("session", id),
				slog.String("type", typ))
		}
	}
}

func (g *Gateway) enqueueMsg(s *Session, typ string, data any) {
	payload, err := json.Marshal(outbound{Type: typ, Data: data})
	if err != nil {
		g.log.Error("marshal outbound", slog.String("type", typ), slog.Any("err", err))
		return
	}
	s.Enqueue(payload)
}
