// Package rooms tracks which sessions are watching which live broadcast and
// owns the decision of when the broker subscription for a room opens and
// closes. Callers perform the actual subscribe/unsubscribe I/O; the registry
// guarantees each transition is observed exactly once.
package rooms

import "sync"

// Registry maps liveID -> room. The registry mutex guards only the map;
// membership mutations take the per-room mutex so traffic in different rooms
// never contends. Neither lock is ever held across I/O.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	mu         sync.Mutex
	members    map[string]struct{}
	subscribed bool

	// dead marks a room that was deleted from the map while a concurrent
	// Join held a stale pointer; such a Join retries against a fresh room.
	dead bool
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join adds sessionID to the room for liveID, creating the room on first
// use. It returns true exactly when the room transitioned empty -> active,
// meaning the caller must open the broker subscription. Joining a room the
// session is already in is a no-op returning false.
func (r *Registry) Join(liveID, sessionID string) (wasFirst bool) {
	for {
		r.mu.Lock()
		rm := r.rooms[liveID]
		if rm == nil {
			rm = &room{members: make(map[string]struct{})}
			r.rooms[liveID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			continue
		}
		if _, ok := rm.members[sessionID]; ok {
			rm.mu.Unlock()
			return false
		}
		rm.members[sessionID] = struct{}{}
		wasFirst = !rm.subscribed
		if wasFirst {
			rm.subscribed = true
		}
		rm.mu.Unlock()
		return wasFirst
	}
}

// Leave removes sessionID from the room for liveID. It returns true exactly
// when the room transitioned active -> empty, meaning the caller must close
// the broker subscription. Leaving a room the session is not in is a no-op
// returning false.
func (r *Registry) Leave(liveID, sessionID string) (isNowEmpty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[liveID]
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.members[sessionID]; !ok {
		return false
	}
	delete(rm.members, sessionID)
	if len(rm.members) == 0 {
		rm.subscribed = false
		rm.dead = true
		delete(r.rooms, liveID)
		return true
	}
	return false
}

// Members returns a snapshot of the session ids currently in liveID's room.
// Fan-out callbacks call this at delivery time so late joiners are included.
func (r *Registry) Members(liveID string) []string {
	r.mu.Lock()
	rm := r.rooms[liveID]
	r.mu.Unlock()
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]string, 0, len(rm.members))
	for id := range rm.members {
		out = append(out, id)
	}
	return out
}

// Subscribed reports whether liveID's room currently holds a broker
// subscription.
func (r *Registry) Subscribed(liveID string) bool {
	r.mu.Lock()
	rm := r.rooms[liveID]
	r.mu.Unlock()
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.subscribed && !rm.dead
}
