package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds each frame write so a stalled client can't pin a
// goroutine forever.
const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler handles GET /ws/{session_id} (§6.2). It upgrades the
// connection, subscribes to the session's Event Bus, and forwards every
// event as a JSON frame. Client -> server frames are read and discarded
// (§6.2: "informational channel"); the read loop exists only to notice
// the socket closing so the subscription can be torn down.
func (s *Server) wsHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(sessionID)
	defer sub.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
