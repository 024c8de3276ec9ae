// Package ws - Build Progress WebSocket Hub
// Broadcasts pipeline progress to interactive clients subscribed to a
// build. One room per build ID; rooms disappear with their last client.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dappforge/internal/logging"
	"dappforge/internal/stream"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Progress streams are read-only; the build ID in the URL is
		// the capability.
		return true
	},
}

// Hub routes build events to subscribed connections.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]bool
}

type client struct {
	conn    *websocket.Conn
	buildID string
	send    chan []byte
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]bool)}
}

// Broadcast sends one event to every subscriber of a build. Slow
// clients are dropped rather than blocking the pipeline.
func (h *Hub) Broadcast(buildID string, ev stream.Event) {
	data, err := marshalEvent(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	room := h.rooms[buildID]
	var stale []*client
	for c := range room {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.unsubscribe(c)
	}
}

// Subscribers reports the number of connections watching a build.
func (h *Hub) Subscribers(buildID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[buildID])
}

// HandleWS upgrades the request and subscribes it to the build's room
// until the connection drops.
func (h *Hub) HandleWS(c *gin.Context) {
	buildID := c.Param("id")
	if buildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "build id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, buildID: buildID, send: make(chan []byte, sendBuffer)}
	h.subscribe(cl)

	go cl.writePump()
	cl.readPump(h)
}

func (h *Hub) subscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.buildID] == nil {
		h.rooms[c.buildID] = make(map[*client]bool)
	}
	h.rooms[c.buildID][c] = true
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	room := h.rooms[c.buildID]
	if room != nil && room[c] {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.buildID)
		}
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump drains the connection so pong handlers run; inbound frames
// are ignored.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unsubscribe(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
