package ws

import (
	"encoding/json"
	"sync"
	"time"

	"code_arena/internal/platform/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

// Hub fans out messages to per-contest rooms. Membership is ephemeral: it
// lives only as long as the connection, and clients re-join after a
// reconnect. Delivery is best-effort, at-most-once; a client that cannot
// keep up is dropped and picks up the current state on its next join.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	hub  *Hub
	room string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

// Join registers the connection in the contest's room and starts its read
// and write pumps. The hub owns the connection from this point on.
func (h *Hub) Join(room string, conn *websocket.Conn) {
	c := &client{
		hub:  h,
		room: room,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// Broadcast marshals the payload once and pushes it to every subscriber of
// the room. Subscribers with a full send buffer are disconnected rather
// than blocking the publisher.
func (h *Hub) Broadcast(room string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.L.Error("broadcast marshal failed", zap.String("room", room), zap.Error(err))
		return
	}

	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		select {
		case c.send <- data:
		default:
			c.close()
		}
	}
}

// RoomSize reports the number of live subscribers in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.mu.Lock()
		if room, ok := c.hub.rooms[c.room]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(c.hub.rooms, c.room)
			}
		}
		c.hub.mu.Unlock()

		close(c.done)
		c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

// readPump discards inbound frames; the protocol is one-way. It exists to
// notice closes and keep the pong handler serviced.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
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
