// Package live holds the domain types flowing through the fan-out core:
// chat messages, structured match events, and live-only system events.
package live

import "time"

// EventType classifies a match event.
type EventType string

const (
	EventScore        EventType = "score"
	EventPeriodStart  EventType = "period-start"
	EventPeriodEnd    EventType = "period-end"
	EventTimeout      EventType = "timeout"
	EventSubstitution EventType = "substitution"
	EventFoul         EventType = "foul"
	EventWarning      EventType = "warning"
	EventEjection     EventType = "ejection"
	EventReview       EventType = "review"
	EventInjury       EventType = "injury"
	EventCustom       EventType = "custom"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventScore, EventPeriodStart, EventPeriodEnd, EventTimeout,
		EventSubstitution, EventFoul, EventWarning, EventEjection,
		EventReview, EventInjury, EventCustom:
		return true
	}
	return false
}

// ChatMessage is a single viewer chat message. Immutable once published.
type ChatMessage struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MatchEvent is a structured in-match occurrence (goal, foul, period
// boundary, ...). Immutable once published; additionally written to the
// durable audit store on a best-effort basis.
type MatchEvent struct {
	ID        string         `json:"id"`
	LiveID    string         `json:"liveId"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SystemEvent carries broadcast status transitions ("now live", "finished")
// to the viewers of one room. Delivered live only: never stored, never
// replayed.
type SystemEvent struct {
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
