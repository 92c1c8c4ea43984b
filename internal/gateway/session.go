package gateway

import (
	"sync"

	"github.com/google/uuid"
)

const sessionSendBuffer = 64

// Session is one connected viewer: an opaque id, a bounded outbound queue,
// and the set of rooms it has joined. The transport drains Outbox; the
// gateway only ever enqueues.
type Session struct {
	ID string

	mu     sync.Mutex
	send   chan []byte
	rooms  map[string]struct{}
	closed bool

	// pendingReplay holds, per room mid-join, the ids of match events the
	// session already received live. The replay snapshot consumes the set
	// via takePendingReplay so those events are not delivered twice.
	pendingReplay map[string]map[string]struct{}
}

func NewSession() *Session {
	return &Session{
		ID:            uuid.NewString(),
		send:          make(chan []byte, sessionSendBuffer),
		rooms:         make(map[string]struct{}),
		pendingReplay: make(map[string]map[string]struct{}),
	}
}

// Enqueue queues payload for delivery, dropping the oldest pending frame
// when the queue is full. Returns false when the session is closed or the
// payload still did not fit.
func (s *Session) Enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
	}
	select {
	case <-s.send:
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Outbox exposes the delivery queue to the transport write loop. It is
// closed by Close.
func (s *Session) Outbox() <-chan []byte { return s.send }

// Close marks the session dead and closes the outbox. Safe to call more
// than once; enqueues after Close are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// trackRoom records membership locally, returning false when the session
// was already in the room. This is the idempotence guard for re-joins.
func (s *Session) trackRoom(liveID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[liveID]; ok {
		return false
	}
	s.rooms[liveID] = struct{}{}
	s.pendingReplay[liveID] = make(map[string]struct{})
	return true
}

func (s *Session) untrackRoom(liveID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[liveID]; !ok {
		return false
	}
	delete(s.rooms, liveID)
	delete(s.pendingReplay, liveID)
	return true
}

// noteLiveEvent records an event id delivered live to a session whose join
// replay for the room has not gone out yet. A no-op once the replay has
// consumed the set.
func (s *Session) noteLiveEvent(liveID, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seen, ok := s.pendingReplay[liveID]; ok {
		seen[eventID] = struct{}{}
	}
}

// takePendingReplay returns and clears the live-delivered ids recorded for
// the room's join window.
func (s *Session) takePendingReplay(liveID string) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := s.pendingReplay[liveID]
	delete(s.pendingReplay, liveID)
	return seen
}

// takeRooms empties and returns the session's room set, for disconnect
// teardown.
func (s *Session) takeRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	s.rooms = make(map[string]struct{})
	s.pendingReplay = make(map[string]map[string]struct{})
	return out
}
