package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"courtside/internal/live"
)

func dialTestGateway(t *testing.T) (*testStack, *websocket.Conn) {
	t.Helper()
	ts := newTestStack(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ts.gw.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return ts, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestWS_JoinChatRoundTrip(t *testing.T) {
	_, conn := dialTestGateway(t)

	if err := conn.WriteJSON(inbound{Type: msgJoinLive, LiveID: "l1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	if f := readFrame(t, conn); f.Type != msgJoinedLive {
		t.Fatalf("first frame = %s, want joined-live", f.Type)
	}
	if f := readFrame(t, conn); f.Type != msgEventsHistory {
		t.Fatalf("second frame = %s, want events-history", f.Type)
	}

	err := conn.WriteJSON(inbound{Type: msgChatSend, LiveID: "l1", UserID: "u1", UserName: "Ana", Message: " gol! "})
	if err != nil {
		t.Fatalf("write chat: %v", err)
	}

	got := map[string]frame{}
	for i := 0; i < 2; i++ {
		f := readFrame(t, conn)
		got[f.Type] = f
	}
	echo, ok := got[msgChatMessage]
	if !ok {
		t.Fatalf("no self-echo chat-message, got %v", got)
	}
	var msg live.ChatMessage
	if err := json.Unmarshal(echo.Data, &msg); err != nil {
		t.Fatalf("decode echo: %v", err)
	}
	if msg.Message != "gol!" {
		t.Fatalf("echoed message = %q, want trimmed %q", msg.Message, "gol!")
	}
	if _, ok := got[msgChatMessageSent]; !ok {
		t.Fatalf("no chat-message-sent ack, got %v", got)
	}
}

func TestWS_UnsupportedTypeYieldsError(t *testing.T) {
	_, conn := dialTestGateway(t)

	if err := conn.WriteJSON(inbound{Type: "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Type != msgError {
		t.Fatalf("frame = %s, want error", f.Type)
	}
}

func TestWS_DisconnectDrainsRooms(t *testing.T) {
	ts, conn := dialTestGateway(t)

	if err := conn.WriteJSON(inbound{Type: msgJoinLive, LiveID: "l1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	readFrame(t, conn) // joined-live
	readFrame(t, conn) // events-history
	if !ts.registry.Subscribed("l1") {
		t.Fatal("room should be subscribed after join")
	}

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.registry.Subscribed("l1") {
		if time.Now().After(deadline) {
			t.Fatal("room subscription not torn down after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
