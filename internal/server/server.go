// Package server assembles the HTTP surface: the websocket endpoint for
// viewer sessions and the small REST paths used by collaborators (chat
// history pull, match-event ingestion, broadcast status transitions).
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"courtside/internal/gateway"
	"courtside/internal/live"
)

type Server struct {
	log *slog.Logger
	gw  *gateway.Gateway
}

func New(gw *gateway.Gateway, log *slog.Logger) *Server {
	return &Server{log: log.With(slog.String("comp", "http")), gw: gw}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/ws", s.gw.ServeWS)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api/lives/{liveID}", func(r chi.Router) {
		r.Get("/messages", s.handleRecentMessages)
		r.Post("/events", s.handlePublishEvent)
		r.Post("/status", s.handleStatusChange)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleRecentMessages is the pull-based chat history read path, used by a
// viewing page before it opens the live connection.
func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	liveID := chi.URLParam(r, "liveID")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	msgs, err := s.gw.RecentChat(r.Context(), liveID, limit)
	if err != nil {
		s.log.Error("recent messages", slog.String("live", liveID), slog.Any("err", err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []live.ChatMessage{}
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

// handlePublishEvent ingests a structured match event from the broadcast
// CRUD collaborator and fans it out to the room.
func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var ev live.MatchEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	ev.LiveID = chi.URLParam(r, "liveID")

	if err := s.gw.PublishEvent(r.Context(), ev); err != nil {
		s.log.Warn("publish event rejected", slog.String("live", ev.LiveID), slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"id": ev.ID})
}

// handleStatusChange is the broadcast-lifecycle hook: scheduled -> live ->
// finished/cancelled transitions reach viewers as live-event pushes.
func (s *Server) handleStatusChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Status) == "" {
		http.Error(w, "status required", http.StatusBadRequest)
		return
	}

	liveID := chi.URLParam(r, "liveID")
	s.gw.BroadcastSystemEvent(liveID, "status-change", map[string]any{"status": body.Status})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", slog.Any("err", err))
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)))
	})
}
