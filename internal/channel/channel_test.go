package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"courtside/internal/broker"
	"courtside/internal/live"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChatChannel_PublishRoundTrip(t *testing.T) {
	bridge := broker.NewMemory(time.Hour)
	ch := NewChat(bridge, 100, discardLogger())
	ctx := context.Background()

	var got []live.ChatMessage
	if err := ch.Subscribe(ctx, "l1", func(m live.ChatMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sent := live.ChatMessage{UserID: "u1", UserName: "Ana", Message: "gol!", Timestamp: time.Now().UTC().Truncate(time.Second)}
	if err := ch.Publish(ctx, "l1", sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(got) != 1 || got[0].Message != "gol!" || got[0].UserID != "u1" {
		t.Fatalf("delivered = %+v, want the published message", got)
	}

	recent, err := ch.Recent(ctx, "l1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Message != "gol!" {
		t.Fatalf("history = %+v, want the published message", recent)
	}
}

func TestChatChannel_RecentSkipsMalformedEntries(t *testing.T) {
	bridge := broker.NewMemory(time.Hour)
	ch := NewChat(bridge, 100, discardLogger())
	ctx := context.Background()

	_ = bridge.PushHistory(ctx, ChatTopic("l1"), []byte("{not json"), 100)
	if err := ch.Publish(ctx, "l1", live.ChatMessage{UserID: "u1", Message: "ok", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	recent, err := ch.Recent(ctx, "l1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Message != "ok" {
		t.Fatalf("recent = %+v, want the single valid message", recent)
	}
}

func TestChatChannel_MalformedLivePayloadSkipped(t *testing.T) {
	bridge := broker.NewMemory(time.Hour)
	ch := NewChat(bridge, 100, discardLogger())
	ctx := context.Background()

	calls := 0
	_ = ch.Subscribe(ctx, "l1", func(live.ChatMessage) { calls++ })
	_ = bridge.Publish(ctx, ChatTopic("l1"), []byte("garbage"))
	if calls != 0 {
		t.Fatalf("handler invoked %d times for garbage payload, want 0", calls)
	}
}

type captureSink struct {
	saved chan live.MatchEvent
	err   error
}

func (s *captureSink) Save(_ context.Context, ev live.MatchEvent) error {
	s.saved <- ev
	return s.err
}

func TestEventChannel_PublishPersistsAsynchronously(t *testing.T) {
	bridge := broker.NewMemory(time.Hour)
	sink := &captureSink{saved: make(chan live.MatchEvent, 1)}
	ch := NewEvents(bridge, sink, 200, discardLogger())
	ctx := context.Background()

	ev := live.MatchEvent{ID: "e1", LiveID: "l1", Type: live.EventScore, Timestamp: time.Now().UTC()}
	if err := ch.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sink.saved:
		if got.ID != "e1" {
			t.Fatalf("persisted event %q, want e1", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the sink")
	}
}

func TestEventChannel_SinkFailureDoesNotFailPublish(t *testing.T) {
	bridge := broker.NewMemory(time.Hour)
	sink := &captureSink{saved: make(chan live.MatchEvent, 1), err: errors.New("db down")}
	ch := NewEvents(bridge, sink, 200, discardLogger())
	ctx := context.Background()

	var delivered []live.MatchEvent
	_ = ch.Subscribe(ctx, "l1", func(ev live.MatchEvent) { delivered = append(delivered, ev) })

	ev := live.MatchEvent{ID: "e1", LiveID: "l1", Type: live.EventFoul, Timestamp: time.Now().UTC()}
	if err := ch.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish should succeed despite sink failure, got %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("fan-out delivered %d events, want 1", len(delivered))
	}
	<-sink.saved // persistence was still attempted
}

func TestEventChannel_NilSinkPublishes(t *testing.T) {
	bridge := broker.NewMemory(time.Hour)
	ch := NewEvents(bridge, nil, 200, discardLogger())

	ev := live.MatchEvent{ID: "e1", LiveID: "l1", Type: live.EventCustom, Timestamp: time.Now().UTC()}
	if err := ch.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestEventChannel_RecentMostRecentFirst(t *testing.T) {
	bridge := broker.NewMemory(time.Hour)
	ch := NewEvents(bridge, nil, 200, discardLogger())
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		ev := live.MatchEvent{ID: id, LiveID: "l1", Type: live.EventScore, Timestamp: time.Now().UTC()}
		if err := ch.Publish(ctx, ev); err != nil {
			t.Fatalf("Publish(%s): %v", id, err)
		}
	}

	recent, err := ch.Recent(ctx, "l1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "e3" || recent[1].ID != "e2" {
		t.Fatalf("recent = %+v, want [e3 e2]", recent)
	}
}
