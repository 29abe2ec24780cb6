// Package hub multiplexes websocket connections into per-board rooms and
// fans out realtime events, excluding each event's originating connection.
package hub

import "encoding/json"

// frameKind enumerates every client-originated message kind. The read loop
// dispatches with an exhaustive switch; an unknown kind is a protocol error
// and the frame is dropped.
type frameKind int

const (
	frameUnknown frameKind = iota
	frameJoinRoom
	frameLeaveRoom
	frameItemMoved
	frameEditingStart
	frameEditingStop
	frameHeartbeatRequest
	frameRotationRequest
)

func parseFrameKind(s string) frameKind {
	switch s {
	case "join-room":
		return frameJoinRoom
	case "leave-room":
		return frameLeaveRoom
	case "item-moved":
		return frameItemMoved
	case "editing-start":
		return frameEditingStart
	case "editing-stop":
		return frameEditingStop
	case "heartbeat-request":
		return frameHeartbeatRequest
	case "force-rotation-request":
		return frameRotationRequest
	default:
		return frameUnknown
	}
}

// clientFrame is the envelope of every client-originated message.
type clientFrame struct {
	Type        string   `json:"type"`
	BoardID     string   `json:"boardId,omitempty"`
	ItemID      string   `json:"itemId,omitempty"`
	ContainerID *string  `json:"containerId,omitempty"`
	PositionX   *float64 `json:"positionX,omitempty"`
	PositionY   *float64 `json:"positionY,omitempty"`
}

// Server-originated event types.
const (
	EventPresenceConnected    = "presence-connected"
	EventPresenceDisconnected = "presence-disconnected"
	EventItemMoved            = "item-moved"
	EventItemCreated          = "item-created"
	EventEditingStart         = "editing-start"
	EventEditingStop          = "editing-stop"
	EventContainerCreated     = "container-created"
	EventContainerRenamed     = "container-renamed"
	EventContainerDeleted     = "container-deleted"
	EventOrdersRebalanced     = "orders-rebalanced"
	EventHeartbeatResponse    = "heartbeat-response"
	EventRotationCompleted    = "rotation-completed"
	EventAuthFailed           = "auth-failed"
)

// OrderEntry carries one reassigned order value in an orders-rebalanced event.
type OrderEntry struct {
	ItemID string  `json:"itemId"`
	Order  float64 `json:"order"`
}

// ServerEvent is the envelope of every server-originated message. Fields are
// populated per event type; absent fields are omitted on the wire.
type ServerEvent struct {
	Type        string       `json:"type"`
	BoardID     string       `json:"boardId,omitempty"`
	ItemID      string       `json:"itemId,omitempty"`
	ContainerID *string      `json:"containerId,omitempty"`
	Content     string       `json:"content,omitempty"`
	Title       string       `json:"title,omitempty"`
	Order       *float64     `json:"order,omitempty"`
	PositionX   *float64     `json:"positionX,omitempty"`
	PositionY   *float64     `json:"positionY,omitempty"`
	Items       []OrderEntry `json:"items,omitempty"`
	UserID      string       `json:"userId,omitempty"`
	UserName    string       `json:"userName,omitempty"`
	SessionID   string       `json:"sessionId,omitempty"`
	IsValid     *bool        `json:"isValid,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
}

func (e *ServerEvent) encode() []byte {
	b, _ := json.Marshal(e)
	return b
}
