// Package ratelimit caps per-user chat throughput with a window counter.
//
// The window resets as a whole rather than sliding per message, so a user
// can burst up to twice the limit across a window boundary. That is the
// accepted tradeoff for keeping the state to one counter per user. State is
// per-process; a horizontally scaled deployment would need a shared counter.
package ratelimit

import (
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter tracks one window counter per user id.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Allow reports whether userID may send another message now, counting the
// attempt when allowed. The first message in a fresh window always passes.
func (l *Limiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[userID]
	if !ok || now.After(e.resetAt) {
		l.entries[userID] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if e.count < l.limit {
		e.count++
		return true
	}
	return false
}

// RetryAfter returns the time until userID's window resets, or 0 when the
// user is unknown or the window has already elapsed.
func (l *Limiter) RetryAfter(userID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[userID]
	if !ok {
		return 0
	}
	remaining := e.resetAt.Sub(l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Sweep drops entries whose reset time is more than one extra window in the
// past and returns how many were removed. Called periodically and on
// disconnect cleanup to bound memory.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for id, e := range l.entries {
		if e.resetAt.Before(cutoff) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked users. Test hook.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
