package gateway

// Message types spoken over the websocket, client -> server.
const (
	msgJoinLive  = "join-live"
	msgLeaveLive = "leave-live"
	msgChatSend  = "chat-message"
)

// Message types spoken over the websocket, server -> client.
const (
	msgJoinedLive        = "joined-live"
	msgLeftLive          = "left-live"
	msgEventsHistory     = "events-history"
	msgChatMessageSent   = "chat-message-sent"
	msgRateLimitExceeded = "rate-limit-exceeded"
	msgChatMessage       = "chat-message"
	msgMatchEvent        = "match-event"
	msgLiveEvent         = "live-event"
	msgError             = "error"
)

type inbound struct {
	Type     string `json:"type"`
	LiveID   string `json:"liveId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	Message  string `json:"message,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type roomAck struct {
	LiveID string `json:"liveId"`
}

type chatAck struct {
	Success bool `json:"success"`
}

type rateLimitNotice struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"` // seconds until the window resets
}

type errorNotice struct {
	Message string `json:"message"`
}
