package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
	wsMaxMessage = 16 * 1024

	// Flood guard on inbound frames, independent of the per-user chat
	// window limiter: frames over this rate are dropped, not processed.
	wsFloodRate  = 10
	wsFloodBurst = 25
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Viewer pages are served from arbitrary origins; authn happens
		// upstream of this core.
		return true
	},
}

type wsClient struct {
	gw    *Gateway
	conn  *websocket.Conn
	sess  *Session
	flood *rate.Limiter
}

// ServeWS upgrades the request and runs the session until the connection
// drops.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if !errors.Is(err, http.ErrHijacked) {
			g.log.Warn("upgrade websocket", slog.Any("err", err))
		}
		return
	}

	sess := NewSession()
	g.OnConnect(sess)

	client := &wsClient{
		gw:    g,
		conn:  conn,
		sess:  sess,
		flood: rate.NewLimiter(rate.Limit(wsFloodRate), wsFloodBurst),
	}
	go client.writeLoop()
	client.readLoop(r.Context())
}

func (c *wsClient) readLoop(ctx context.Context) {
	defer func() {
		c.gw.OnDisconnect(ctx, c.sess)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var evt inbound
		if err := c.conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gw.log.Warn("ws read", slog.String("session", c.sess.ID), slog.Any("err", err))
			}
			return
		}
		if !c.flood.Allow() {
			c.gw.log.Warn("inbound flood, frame dropped", slog.String("session", c.sess.ID))
			continue
		}
		c.handle(ctx, evt)
	}
}

func (c *wsClient) handle(ctx context.Context, evt inbound) {
	switch evt.Type {
	case msgJoinLive:
		c.gw.OnJoin(ctx, c.sess, evt.LiveID)
	case msgLeaveLive:
		c.gw.OnLeave(ctx, c.sess, evt.LiveID)
	case msgChatSend:
		c.gw.OnChatSend(ctx, c.sess, evt.LiveID, evt.UserID, evt.UserName, evt.Message)
	default:
		c.gw.enqueueMsg(c.sess, msgError, errorNotice{Message: "unsupported message type"})
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.sess.Outbox():
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
