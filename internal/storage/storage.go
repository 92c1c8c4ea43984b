// Package storage persists match events to sqlite for permanent audit. The
// gateway writes here fire-and-forget; this store is never on the fan-out
// path.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"courtside/internal/live"
)

type EventStore struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path and ensures the
// schema. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps writes serialized and makes ":memory:" share a
	// single database across the pool.
	db.SetMaxOpenConns(1)
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &EventStore{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	const eventsTable = `
    CREATE TABLE IF NOT EXISTS match_events (
        id TEXT PRIMARY KEY,
        live_id TEXT NOT NULL,
        type TEXT NOT NULL,
        payload TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL
    );`
	if _, err := db.ExecContext(ctx, eventsTable); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	const liveIndex = `
    CREATE INDEX IF NOT EXISTS idx_match_events_live
    ON match_events(live_id, created_at);`
	if _, err := db.ExecContext(ctx, liveIndex); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	return nil
}

// Save writes one match event. Duplicate ids are ignored so a redelivered
// event cannot fail the audit trail.
func (s *EventStore) Save(ctx context.Context, ev live.MatchEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO match_events (id, live_id, type, payload, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.LiveID, string(ev.Type), string(payload), ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// RecentByLive returns up to limit audited events for one broadcast, most
// recent first.
func (s *EventStore) RecentByLive(ctx context.Context, liveID string, limit int) ([]live.MatchEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, live_id, type, payload, created_at
        FROM match_events
        WHERE live_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, liveID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []live.MatchEvent
	for rows.Next() {
		var ev live.MatchEvent
		var typ, payload string
		if err := rows.Scan(&ev.ID, &ev.LiveID, &typ, &payload, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = live.EventType(typ)
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *EventStore) Close() error { return s.db.Close() }
