package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authservice "retroboard/backend/internal/auth"
	boarddomain "retroboard/backend/internal/board/domain"
	boardservice "retroboard/backend/internal/board/service"
	"retroboard/backend/internal/hub"
	"retroboard/backend/internal/order"
	"retroboard/backend/internal/security"
	sessionrepo "retroboard/backend/internal/session/repository"
	sessionservice "retroboard/backend/internal/session/service"
	"retroboard/backend/internal/trust"
	userdomain "retroboard/backend/internal/user/domain"
)

const testUserAgent = "Mozilla/5.0 retroboard integration test"

type memUsers struct {
	byID map[string]*userdomain.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	return m.byID[id], nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) Create(_ context.Context, u *userdomain.User) error {
	m.byID[u.ID] = u
	return nil
}

type memBoards struct {
	boards  map[string]*boarddomain.Board
	columns map[string]*boarddomain.Column
	cards   map[string]*boarddomain.Card
}

func newMemBoards() *memBoards {
	return &memBoards{
		boards:  map[string]*boarddomain.Board{},
		columns: map[string]*boarddomain.Column{},
		cards:   map[string]*boarddomain.Card{},
	}
}

func (m *memBoards) GetBoard(_ context.Context, id string) (*boarddomain.Board, error) {
	return m.boards[id], nil
}

func (m *memBoards) CreateBoard(_ context.Context, b *boarddomain.Board) error {
	m.boards[b.ID] = b
	return nil
}

func (m *memBoards) GetColumn(_ context.Context, id string) (*boarddomain.Column, error) {
	return m.columns[id], nil
}

func (m *memBoards) ListColumns(_ context.Context, boardID string) ([]*boarddomain.Column, error) {
	var out []*boarddomain.Column
	for _, c := range m.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memBoards) CreateColumn(_ context.Context, c *boarddomain.Column) error {
	m.columns[c.ID] = c
	return nil
}

func (m *memBoards) CreateColumns(_ context.Context, cols []*boarddomain.Column) error {
	for _, c := range cols {
		m.columns[c.ID] = c
	}
	return nil
}

func (m *memBoards) RenameColumn(_ context.Context, id, title string) error {
	m.columns[id].Title = title
	return nil
}

func (m *memBoards) DeleteColumn(_ context.Context, id string) error {
	for _, c := range m.cards {
		if c.ColumnID != nil && *c.ColumnID == id {
			c.ColumnID = nil
		}
	}
	delete(m.columns, id)
	return nil
}

func (m *memBoards) GetCard(_ context.Context, id string) (*boarddomain.Card, error) {
	return m.cards[id], nil
}

func (m *memBoards) ListCardsByContainer(_ context.Context, boardID string, columnID *string) ([]*boarddomain.Card, error) {
	var out []*boarddomain.Card
	for _, c := range m.cards {
		if c.BoardID != boardID {
			continue
		}
		if columnID == nil && c.ColumnID == nil {
			out = append(out, c)
		} else if columnID != nil && c.ColumnID != nil && *c.ColumnID == *columnID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memBoards) CreateCard(_ context.Context, c *boarddomain.Card) error {
	m.cards[c.ID] = c
	return nil
}

func (m *memBoards) UpdateCardPlacement(_ context.Context, cardID string, columnID *string, cardOrder float64, x, y *float64) error {
	c := m.cards[cardID]
	c.ColumnID = columnID
	c.CardOrder = cardOrder
	c.X = x
	c.Y = y
	return nil
}

func (m *memBoards) ReplaceOrders(_ context.Context, _ string, _ *string, items []order.Item) error {
	for _, it := range items {
		m.cards[it.ID].CardOrder = it.Order
	}
	return nil
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	sessions *sessionservice.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte("correct horse"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &memUsers{byID: map[string]*userdomain.User{
		"u-1": {
			ID:           "u-1",
			Email:        "alice@example.com",
			Name:         "Alice",
			PasswordHash: hash,
			Status:       userdomain.UserStatusActive,
		},
	}}
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("token provider: %v", err)
	}
	cookieCfg := trust.CookieConfig{
		EnableCSRFProtection:           false,
		EnableSessionRotation:          true,
		EnableCookieTamperingDetection: true,
	}
	sessions := sessionservice.New(sessionrepo.NewMemoryRepository(), nil, nil, nil, cookieCfg, time.Hour, 0, false)
	realtime := hub.New(SessionControl{Sessions: sessions})
	sessions.SetConnectionDropper(realtime)
	boards := boardservice.New(newMemBoards(), realtime)
	auth := authservice.New(users, sessions, hasher, tokens)
	srv := New(Config{Addr: ":0"}, auth, sessions, boards, users, tokens, realtime, nil)
	return &testEnv{srv: srv, handler: srv.http.Handler, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("User-Agent", testUserAgent)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(t, "POST", "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == trust.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie on login response")
	return nil
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestAuthenticate_NoToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/boards", map[string]string{"title": "Retro"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestAuthenticate_GarbageToken(t *testing.T) {
	env := newTestEnv(t)
	cookie := &http.Cookie{Name: trust.SessionCookieName, Value: "not-a-jwt"}
	rec := env.do(t, "POST", "/api/boards", map[string]string{"title": "Retro"}, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: %d", rec.Code)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == trust.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}

func TestBoardLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(t, "POST", "/api/boards", map[string]string{"title": "Sprint 12", "template": "mad-sad-glad"}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create board: %d: %s", rec.Code, rec.Body)
	}
	var board struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode board: %v", err)
	}

	rec = env.do(t, "POST", "/api/boards/"+board.ID+"/cards", map[string]any{"content": "first card"}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card: %d: %s", rec.Code, rec.Body)
	}
	var card struct {
		ID        string  `json:"id"`
		CardOrder float64 `json:"cardOrder"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card.CardOrder != order.BaseOrder {
		t.Errorf("first card order: %v", card.CardOrder)
	}

	rec = env.do(t, "GET", "/api/boards/"+board.ID, nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: %d: %s", rec.Code, rec.Body)
	}
	var snap struct {
		Columns []json.RawMessage `json:"columns"`
		Cards   []json.RawMessage `json:"cards"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Columns) != 3 || len(snap.Cards) != 1 {
		t.Errorf("snapshot: %d columns, %d cards", len(snap.Columns), len(snap.Cards))
	}
}

func TestMoveCard_StaleReferenceGets409(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(t, "POST", "/api/boards", map[string]string{"title": "Retro"}, cookie)
	var board struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	rec = env.do(t, "POST", "/api/boards/"+board.ID+"/cards", map[string]any{"content": "card"}, cookie)
	var card struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}

	rec = env.do(t, "PATCH", "/api/cards/"+card.ID+"/position",
		map[string]any{"placement": "after", "refId": "deleted"}, cookie)
	if rec.Code != http.StatusConflict {
		t.Errorf("status: %d: %s", rec.Code, rec.Body)
	}
}

func TestAuthenticate_TerminatedSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	// Terminate every session the login created.
	rec := env.do(t, "POST", "/api/auth/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d: %s", rec.Code, rec.Body)
	}
	rec = env.do(t, "POST", "/api/boards", map[string]string{"title": "Retro"}, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status after logout: %d", rec.Code)
	}
}

func TestAuthenticate_FingerprintMismatchIsViolation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(map[string]string{"title": "Retro"})
	req := httptest.NewRequest("POST", "/api/boards", &buf)
	req.Header.Set("User-Agent", testUserAgent)
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: %d: %s", rec.Code, rec.Body)
	}
	// The violation terminated the session; the original environment is
	// locked out too.
	rec2 := env.do(t, "POST", "/api/boards", map[string]string{"title": "Retro"}, cookie)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("status after violation: %d", rec2.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestMoveCard_UnknownPlacement(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	rec := env.do(t, "PATCH", "/api/cards/whatever/position", map[string]any{"placement": "sideways"}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: %d: %s", rec.Code, rec.Body)
	}
}
