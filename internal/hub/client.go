package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound frames. Movement and presence frames are
	// tiny; anything larger is a protocol violation.
	maxMessageSize = 4096
	// sendBufferSize is the per-connection outbound queue. A consumer that
	// falls this far behind is disconnected rather than allowed to stall
	// the room.
	sendBufferSize = 64
)

// Identity is the authenticated principal behind a connection. UserName is
// the public display name; the session id never leaves the server except in
// heartbeat and rotation responses to the connection's own owner.
type Identity struct {
	SessionID string
	UserID    string
	UserName  string
}

type editKey struct {
	boardID string
	itemID  string
}

// connection is one live websocket bound to a session. Room memberships and
// editing marks are guarded by the hub's mutex; the send channel is drained
// by a single writer goroutine so per-origin emission order is preserved.
type connection struct {
	id       string
	identity Identity
	hub      *Hub
	ws       *websocket.Conn
	send     chan []byte
	rooms    map[string]struct{}
	editing  map[editKey]struct{}

	sendMu sync.Mutex
	closed bool
}

// trySend enqueues a frame without blocking. Reports false when the buffer
// is full; the caller disconnects the laggard. A frame offered to an already
// closed connection is discarded.
func (c *connection) trySend(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend marks the connection closed and shuts the outbound queue,
// terminating the write pump. Safe against concurrent trySend.
func (c *connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *connection) sendEvent(e *ServerEvent) {
	if !c.trySend(e.encode()) {
		c.hub.drop(c)
	}
}

// readPump consumes client frames until the socket closes, dispatching each
// by kind. Malformed or unknown frames are dropped and logged; they never
// take down the connection or a peer.
func (c *connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("hub: conn %s: malformed frame dropped: %v", c.id, err)
			continue
		}
		c.dispatch(&frame)
	}
}

func (c *connection) dispatch(frame *clientFrame) {
	switch parseFrameKind(frame.Type) {
	case frameJoinRoom:
		if frame.BoardID == "" {
			log.Printf("hub: conn %s: join-room without boardId dropped", c.id)
			return
		}
		c.hub.Join(c, frame.BoardID)
	case frameLeaveRoom:
		if frame.BoardID == "" {
			log.Printf("hub: conn %s: leave-room without boardId dropped", c.id)
			return
		}
		c.hub.Leave(c, frame.BoardID)
	case frameItemMoved:
		if frame.BoardID == "" || frame.ItemID == "" {
			log.Printf("hub: conn %s: item-moved missing ids dropped", c.id)
			return
		}
		c.hub.rebroadcastMovement(c, frame)
	case frameEditingStart:
		c.hub.setEditing(c, frame.BoardID, frame.ItemID, true)
	case frameEditingStop:
		c.hub.setEditing(c, frame.BoardID, frame.ItemID, false)
	case frameHeartbeatRequest:
		c.hub.heartbeat(c)
	case frameRotationRequest:
		c.hub.forceRotation(c)
	case frameUnknown:
		log.Printf("hub: conn %s: unknown frame type %q dropped", c.id, frame.Type)
	}
}

// writePump drains the send channel onto the socket and keeps the connection
// alive with periodic pings. Closing the send channel terminates it.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionContext bounds the store lookups behind heartbeat and rotation so a
// latent store never blocks the dispatcher.
func sessionContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
