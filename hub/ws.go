package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The engine sits behind the platform's HTTP surface which owns
	// origin policy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// clientCommand is the inbound subscribe/unsubscribe message.
type clientCommand struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Topic  string `json:"topic"`
}

// Handler upgrades HTTP requests to websocket subscribers of the hub.
// New connections start subscribed to the "all" group.
func Handler(h *Hub, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		conn := h.OnConnect()
		if err := h.Subscribe(conn.ID(), TopicAll); err != nil {
			log.Warn("initial subscribe failed", zap.String("conn", conn.ID()), zap.Error(err))
		}
		go serveConn(r.Context(), h, conn, ws, log)
	})
}

func serveConn(ctx context.Context, h *Hub, conn *Conn, ws *websocket.Conn, log *zap.Logger) {
	defer func() {
		h.OnDisconnect(conn.ID())
		ws.Close()
	}()

	go writePump(conn, ws)

	ws.SetReadLimit(1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Debug("bad client command", zap.String("conn", conn.ID()), zap.Error(err))
			continue
		}
		switch cmd.Action {
		case "subscribe":
			if err := h.Subscribe(conn.ID(), cmd.Topic); err != nil {
				log.Debug("subscribe failed", zap.String("conn", conn.ID()), zap.Error(err))
			}
		case "unsubscribe":
			h.Unsubscribe(conn.ID(), cmd.Topic)
		}
	}
}

// writePump drains the hub queue into the socket, interleaving pings.
func writePump(conn *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case payload := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
