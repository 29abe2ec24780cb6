package hub

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Admitter authenticates an upgrade request and resolves the identity behind
// it. Implemented by the server wiring on top of the session trust check.
// The error message of a rejection is sent to the client verbatim, so
// implementations must return curated reasons, never internal errors.
type Admitter interface {
	Admit(r *http.Request) (Identity, error)
}

// Handler upgrades HTTP requests to websocket connections and hands them to
// the hub. A request that fails admission is still upgraded so the client
// receives a terminal auth-failed event before the close.
type Handler struct {
	hub      *Hub
	admitter Admitter
	upgrader websocket.Upgrader
}

// NewHandler returns a websocket handler for the hub.
func NewHandler(h *Hub, a Admitter, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		hub:      h,
		admitter: a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	id, err := h.admitter.Admit(r)
	if err != nil {
		frame := (&ServerEvent{
			Type:      EventAuthFailed,
			Reason:    err.Error(),
			Timestamp: h.hub.nowMs(),
		}).encode()
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.TextMessage, frame)
		_ = ws.Close()
		return
	}
	conn, err := h.hub.register(id, ws, TabID(r))
	if err != nil {
		log.Printf("hub: register connection: %v", err)
		_ = ws.Close()
		return
	}
	go conn.writePump()
	conn.readPump()
}

// TabHeaderName carries the originating tab id on HTTP mutation requests so
// the hub can suppress the echo back to that tab.
const TabHeaderName = "X-Tab-ID"

const maxTabIDLength = 64

// TabID extracts the client's tab id from a request: the tabId query
// parameter on websocket upgrades, the tab header on HTTP mutations.
// Oversized values are discarded rather than truncated.
func TabID(r *http.Request) string {
	id := r.URL.Query().Get("tabId")
	if id == "" {
		id = r.Header.Get(TabHeaderName)
	}
	if len(id) > maxTabIDLength {
		return ""
	}
	return id
}
