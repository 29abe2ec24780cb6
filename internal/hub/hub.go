package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	boarddomain "retroboard/backend/internal/board/domain"
	boardservice "retroboard/backend/internal/board/service"
	"retroboard/backend/internal/order"
	"retroboard/backend/internal/trust"
)

// SessionControl is the slice of the session layer the hub needs for
// heartbeat and rotation. Both calls may hit a durable store; the hub holds
// no locks while they run.
type SessionControl interface {
	Alive(ctx context.Context, sessionID string) bool
	Rotate(ctx context.Context, sessionID string) (newSessionID string, err error)
}

// Hub owns connection lifecycle, room membership, and event fan-out. One Hub
// instance serves the whole process; rooms are keyed by board id. A single
// mutex serializes join, leave, and membership snapshots so a broadcast
// never sees a connection mid-removal.
type Hub struct {
	sessions SessionControl

	mu        sync.RWMutex
	conns     map[string]*connection
	rooms     map[string]map[*connection]struct{}
	bySession map[string]map[*connection]struct{}

	nowF func() time.Time
}

// New returns an empty hub. sessions may be nil in tests; heartbeat then
// reports the session invalid and rotation fails.
func New(sessions SessionControl) *Hub {
	return &Hub{
		sessions:  sessions,
		conns:     map[string]*connection{},
		rooms:     map[string]map[*connection]struct{}{},
		bySession: map[string]map[*connection]struct{}{},
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) nowMs() int64 {
	return h.nowF().UnixMilli()
}

// register creates a connection bound to the identity and indexes it. The
// connection id is the client's tab-scoped id, also used as the echo
// suppression key; without one (or on a collision) a fresh random id is
// assigned.
func (h *Hub) register(id Identity, ws *websocket.Conn, tabID string) (*connection, error) {
	c := &connection{
		identity: id,
		hub:      h,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		rooms:    map[string]struct{}{},
		editing:  map[editKey]struct{}{},
	}
	h.mu.Lock()
	connID := tabID
	if connID == "" || h.conns[connID] != nil {
		fresh, err := trust.NewTabID()
		if err != nil {
			h.mu.Unlock()
			return nil, err
		}
		connID = fresh
	}
	c.id = connID
	h.conns[c.id] = c
	if h.bySession[id.SessionID] == nil {
		h.bySession[id.SessionID] = map[*connection]struct{}{}
	}
	h.bySession[id.SessionID][c] = struct{}{}
	h.mu.Unlock()
	return c, nil
}

// unregister removes the connection from every index and room, emitting
// presence-disconnected and editing-stop to the rooms it leaves behind.
// Idempotent; the second call is a no-op.
func (h *Hub) unregister(c *connection) {
	type farewell struct {
		boardID string
		peers   []*connection
		marks   []editKey
	}
	h.mu.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	if set := h.bySession[c.identity.SessionID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.bySession, c.identity.SessionID)
		}
	}
	var goodbyes []farewell
	for boardID := range c.rooms {
		members := h.rooms[boardID]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, boardID)
		}
		f := farewell{boardID: boardID, peers: snapshot(members)}
		for k := range c.editing {
			if k.boardID == boardID {
				f.marks = append(f.marks, k)
			}
		}
		goodbyes = append(goodbyes, f)
	}
	c.rooms = map[string]struct{}{}
	c.editing = map[editKey]struct{}{}
	h.mu.Unlock()

	for _, f := range goodbyes {
		for _, k := range f.marks {
			deliver(f.peers, &ServerEvent{
				Type:      EventEditingStop,
				BoardID:   k.boardID,
				ItemID:    k.itemID,
				UserID:    c.identity.UserID,
				UserName:  c.identity.UserName,
				Timestamp: h.nowMs(),
			})
		}
		deliver(f.peers, &ServerEvent{
			Type:      EventPresenceDisconnected,
			BoardID:   f.boardID,
			UserID:    c.identity.UserID,
			UserName:  c.identity.UserName,
			Timestamp: h.nowMs(),
		})
	}
	c.closeSend()
}

// drop force-closes a connection. Used for laggards and terminated sessions.
func (h *Hub) drop(c *connection) {
	h.unregister(c)
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// Close drops every connection. Called on server shutdown after the HTTP
// listener has stopped accepting upgrades.
func (h *Hub) Close() {
	h.mu.RLock()
	victims := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		victims = append(victims, c)
	}
	h.mu.RUnlock()
	for _, c := range victims {
		h.drop(c)
	}
}

// Join adds the connection to the board's room and announces it to the other
// members. Idempotent: a repeat join emits nothing.
func (h *Hub) Join(c *connection, boardID string) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	if _, already := c.rooms[boardID]; already {
		h.mu.Unlock()
		return
	}
	c.rooms[boardID] = struct{}{}
	peers := snapshot(h.rooms[boardID])
	if h.rooms[boardID] == nil {
		h.rooms[boardID] = map[*connection]struct{}{}
	}
	h.rooms[boardID][c] = struct{}{}
	h.mu.Unlock()

	deliver(peers, &ServerEvent{
		Type:      EventPresenceConnected,
		BoardID:   boardID,
		UserID:    c.identity.UserID,
		UserName:  c.identity.UserName,
		Timestamp: h.nowMs(),
	})
}

// Leave removes the connection from the board's room, clears its editing
// marks there, and announces the departure. Idempotent.
func (h *Hub) Leave(c *connection, boardID string) {
	h.mu.Lock()
	if _, member := c.rooms[boardID]; !member {
		h.mu.Unlock()
		return
	}
	delete(c.rooms, boardID)
	members := h.rooms[boardID]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, boardID)
	}
	peers := snapshot(members)
	var marks []editKey
	for k := range c.editing {
		if k.boardID == boardID {
			marks = append(marks, k)
			delete(c.editing, k)
		}
	}
	h.mu.Unlock()

	for _, k := range marks {
		deliver(peers, &ServerEvent{
			Type:      EventEditingStop,
			BoardID:   k.boardID,
			ItemID:    k.itemID,
			UserID:    c.identity.UserID,
			UserName:  c.identity.UserName,
			Timestamp: h.nowMs(),
		})
	}
	deliver(peers, &ServerEvent{
		Type:      EventPresenceDisconnected,
		BoardID:   boardID,
		UserID:    c.identity.UserID,
		UserName:  c.identity.UserName,
		Timestamp: h.nowMs(),
	})
}

// rebroadcastMovement relays a client's live movement hint to its room. The
// durable placement travels separately through the mutation service; peers
// treat this event as a low-latency preview.
func (h *Hub) rebroadcastMovement(c *connection, frame *clientFrame) {
	if !h.isMember(c, frame.BoardID) {
		log.Printf("hub: conn %s: item-moved for non-joined board %s dropped", c.id, frame.BoardID)
		return
	}
	h.broadcast(frame.BoardID, c.id, &ServerEvent{
		Type:        EventItemMoved,
		BoardID:     frame.BoardID,
		ItemID:      frame.ItemID,
		ContainerID: frame.ContainerID,
		PositionX:   frame.PositionX,
		PositionY:   frame.PositionY,
		UserID:      c.identity.UserID,
		UserName:    c.identity.UserName,
		Timestamp:   h.nowMs(),
	})
}

// setEditing records or clears an editing mark and relays it. Marks are
// ephemeral hub state, never persisted, and are cleared when the connection
// leaves the room or disconnects.
func (h *Hub) setEditing(c *connection, boardID, itemID string, start bool) {
	if boardID == "" || itemID == "" {
		log.Printf("hub: conn %s: editing frame missing ids dropped", c.id)
		return
	}
	if !h.isMember(c, boardID) {
		log.Printf("hub: conn %s: editing frame for non-joined board %s dropped", c.id, boardID)
		return
	}
	k := editKey{boardID: boardID, itemID: itemID}
	h.mu.Lock()
	if start {
		c.editing[k] = struct{}{}
	} else {
		delete(c.editing, k)
	}
	h.mu.Unlock()
	typ := EventEditingStart
	if !start {
		typ = EventEditingStop
	}
	h.broadcast(boardID, c.id, &ServerEvent{
		Type:      typ,
		BoardID:   boardID,
		ItemID:    itemID,
		UserID:    c.identity.UserID,
		UserName:  c.identity.UserName,
		Timestamp: h.nowMs(),
	})
}

// heartbeat answers a liveness probe to the requesting connection only. The
// response carries the connection's current session id so a rotated client
// can detect drift.
func (h *Hub) heartbeat(c *connection) {
	alive := false
	if h.sessions != nil {
		ctx, cancel := sessionContext()
		alive = h.sessions.Alive(ctx, c.sessionID())
		cancel()
	}
	c.sendEvent(&ServerEvent{
		Type:      EventHeartbeatResponse,
		IsValid:   &alive,
		SessionID: c.sessionID(),
		Timestamp: h.nowMs(),
	})
}

// forceRotation asks the trust layer to mint a fresh session id for the
// connection's session and echoes it back to the requester only.
func (h *Hub) forceRotation(c *connection) {
	if h.sessions == nil {
		c.sendEvent(&ServerEvent{Type: EventAuthFailed, Reason: "rotation unavailable", Timestamp: h.nowMs()})
		return
	}
	ctx, cancel := sessionContext()
	newID, err := h.sessions.Rotate(ctx, c.sessionID())
	cancel()
	if err != nil {
		log.Printf("hub: conn %s: rotation failed: %v", c.id, err)
		c.sendEvent(&ServerEvent{Type: EventAuthFailed, Reason: "rotation failed", Timestamp: h.nowMs()})
		return
	}
	h.rebind(c, newID)
	c.sendEvent(&ServerEvent{
		Type:      EventRotationCompleted,
		SessionID: newID,
		Timestamp: h.nowMs(),
	})
}

// rebind moves the connection under its rotated session id so a later
// DisconnectSession on the new id still finds it.
func (h *Hub) rebind(c *connection, newSessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.bySession[c.identity.SessionID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.bySession, c.identity.SessionID)
		}
	}
	c.identity.SessionID = newSessionID
	if h.bySession[newSessionID] == nil {
		h.bySession[newSessionID] = map[*connection]struct{}{}
	}
	h.bySession[newSessionID][c] = struct{}{}
}

func (c *connection) sessionID() string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.identity.SessionID
}

// DisconnectSession force-closes every live connection bound to the session.
// Called by the session layer on termination and security verdicts; nothing
// about the cause is broadcast to other rooms.
func (h *Hub) DisconnectSession(sessionID string) {
	h.mu.RLock()
	var victims []*connection
	for c := range h.bySession[sessionID] {
		victims = append(victims, c)
	}
	h.mu.RUnlock()
	for _, c := range victims {
		h.drop(c)
	}
}

// CardCreated implements the mutation notifier: announce a persisted card to
// the room, skipping the originating tab.
func (h *Hub) CardCreated(boardID string, card *boarddomain.Card, origin boardservice.Origin) {
	o := card.CardOrder
	h.broadcast(boardID, origin.TabID, &ServerEvent{
		Type:        EventItemCreated,
		BoardID:     boardID,
		ItemID:      card.ID,
		ContainerID: card.ColumnID,
		Content:     card.Content,
		Order:       &o,
		PositionX:   card.X,
		PositionY:   card.Y,
		UserID:      card.AuthorID,
		Timestamp:   h.nowMs(),
	})
}

// CardMoved announces a durable placement. Unlike the live movement hint it
// carries the authoritative order value.
func (h *Hub) CardMoved(boardID string, card *boarddomain.Card, origin boardservice.Origin) {
	o := card.CardOrder
	h.broadcast(boardID, origin.TabID, &ServerEvent{
		Type:        EventItemMoved,
		BoardID:     boardID,
		ItemID:      card.ID,
		ContainerID: card.ColumnID,
		Order:       &o,
		PositionX:   card.X,
		PositionY:   card.Y,
		Timestamp:   h.nowMs(),
	})
}

func (h *Hub) ColumnCreated(boardID string, col *boarddomain.Column, origin boardservice.Origin) {
	h.containerLifecycle(EventContainerCreated, boardID, col.ID, col.Title, origin)
}

func (h *Hub) ColumnRenamed(boardID string, col *boarddomain.Column, origin boardservice.Origin) {
	h.containerLifecycle(EventContainerRenamed, boardID, col.ID, col.Title, origin)
}

func (h *Hub) ColumnDeleted(boardID, columnID string, origin boardservice.Origin) {
	h.containerLifecycle(EventContainerDeleted, boardID, columnID, "", origin)
}

func (h *Hub) containerLifecycle(typ, boardID, containerID, title string, origin boardservice.Origin) {
	e := &ServerEvent{
		Type:        typ,
		BoardID:     boardID,
		ContainerID: &containerID,
		Title:       title,
		Timestamp:   h.nowMs(),
	}
	if actor := h.lookup(origin.TabID); actor != nil {
		e.UserID = actor.identity.UserID
		e.UserName = actor.identity.UserName
	}
	h.broadcast(boardID, origin.TabID, e)
}

// CardsRebalanced pushes a container's reassigned order values to every room
// member, including the origin: the rebalance changed values the originating
// tab computed locally.
func (h *Hub) CardsRebalanced(boardID string, columnID *string, items []order.Item) {
	entries := make([]OrderEntry, len(items))
	for i, it := range items {
		entries[i] = OrderEntry{ItemID: it.ID, Order: it.Order}
	}
	h.broadcast(boardID, "", &ServerEvent{
		Type:        EventOrdersRebalanced,
		BoardID:     boardID,
		ContainerID: columnID,
		Items:       entries,
		Timestamp:   h.nowMs(),
	})
}

// broadcast fans an event out to the room, excluding excludeConnID when set.
// Membership is snapshotted under the lock; delivery happens outside it so a
// latent consumer never stalls join or leave.
func (h *Hub) broadcast(boardID, excludeConnID string, e *ServerEvent) {
	h.mu.RLock()
	var targets []*connection
	for c := range h.rooms[boardID] {
		if c.id == excludeConnID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	deliver(targets, e)
}

func (h *Hub) isMember(c *connection, boardID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[boardID]
	return ok
}

func (h *Hub) lookup(connID string) *connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[connID]
}

// deliver encodes the event once and enqueues it on each target. Laggards
// whose buffers are full are disconnected.
func deliver(targets []*connection, e *ServerEvent) {
	if len(targets) == 0 {
		return
	}
	frame := e.encode()
	for _, c := range targets {
		if !c.trySend(frame) {
			c.hub.drop(c)
		}
	}
}

func snapshot(members map[*connection]struct{}) []*connection {
	out := make([]*connection, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}
