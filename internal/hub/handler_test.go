package hub

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeAdmitter struct {
	mu  sync.Mutex
	ids []Identity
	err error
}

func (f *fakeAdmitter) Admit(*http.Request) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Identity{}, f.err
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) *ServerEvent {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e ServerEvent
	if err := ws.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return &e
}

func TestHandler_AuthFailedBeforeClose(t *testing.T) {
	admitter := &fakeAdmitter{err: errors.New("authentication failed")}
	ts := httptest.NewServer(NewHandler(New(nil), admitter, func(*http.Request) bool { return true }))
	defer ts.Close()

	ws := dial(t, ts)
	defer ws.Close()

	e := readEvent(t, ws)
	if e.Type != EventAuthFailed || e.Reason != "authentication failed" {
		t.Errorf("auth failed event: %+v", e)
	}
	// The server closes right after the terminal event.
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected closed connection after auth-failed")
	}
}

func TestHandler_JoinAndBroadcastEndToEnd(t *testing.T) {
	admitter := &fakeAdmitter{ids: []Identity{
		{SessionID: "s-a", UserID: "u-a", UserName: "Alice"},
		{SessionID: "s-b", UserID: "u-b", UserName: "Bob"},
	}}
	h := New(&fakeSessions{alive: true})
	ts := httptest.NewServer(NewHandler(h, admitter, func(*http.Request) bool { return true }))
	defer ts.Close()

	alice := dial(t, ts)
	defer alice.Close()
	if err := alice.WriteJSON(map[string]string{"type": "join-room", "boardId": "board-1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	// Heartbeat doubles as a barrier: its response proves the join frame was
	// processed, since frames from one connection are handled in order.
	if err := alice.WriteJSON(map[string]string{"type": "heartbeat-request"}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if e := readEvent(t, alice); e.Type != EventHeartbeatResponse {
		t.Fatalf("heartbeat response: %+v", e)
	}

	bob := dial(t, ts)
	defer bob.Close()
	if err := bob.WriteJSON(map[string]string{"type": "join-room", "boardId": "board-1"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	if e := readEvent(t, alice); e.Type != EventPresenceConnected || e.UserName != "Bob" {
		t.Fatalf("presence event: %+v", e)
	}

	if err := bob.WriteJSON(map[string]string{"type": "heartbeat-request"}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if e := readEvent(t, bob); e.Type != EventHeartbeatResponse {
		t.Fatalf("heartbeat response: %+v", e)
	}

	if err := bob.WriteJSON(map[string]any{"type": "item-moved", "boardId": "board-1", "itemId": "card-7"}); err != nil {
		t.Fatalf("move: %v", err)
	}
	e := readEvent(t, alice)
	if e.Type != EventItemMoved || e.ItemID != "card-7" || e.UserName != "Bob" {
		t.Errorf("movement event: %+v", e)
	}

	// The originator never re-receives its own movement.
	_ = bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Error("originator received its own movement event")
	}
}
