package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	auditpkg "retroboard/backend/internal/audit"
	authservice "retroboard/backend/internal/auth"
	boardservice "retroboard/backend/internal/board/service"
	"retroboard/backend/internal/hub"
	"retroboard/backend/internal/order"
	sessionservice "retroboard/backend/internal/session/service"
	"retroboard/backend/internal/trust"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := s.auth.Login(r.Context(), r, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, authservice.ErrAccountDisabled):
			respondError(w, http.StatusForbidden, "account disabled")
		default:
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	s.setSessionCookie(w, res.Token, res.ExpiresAt)
	respondJSON(w, http.StatusOK, map[string]any{
		"userId":    res.Identity.UserID,
		"userName":  res.Identity.UserName,
		"expiresAt": res.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ac := AuthFrom(r.Context())
	if err := s.auth.Logout(r.Context(), ac.Session.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type createBoardRequest struct {
	Title    string `json:"title"`
	Template string `json:"template,omitempty"`
}

func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req createBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	b, err := s.boards.CreateBoard(r.Context(), req.Title, req.Template)
	if err != nil {
		s.respondBoardError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

func (s *Server) handleBoardSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.boards.GetSnapshot(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		s.respondBoardError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type createColumnRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateColumn(w http.ResponseWriter, r *http.Request) {
	var req createColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	col, err := s.boards.CreateColumn(r.Context(), chi.URLParam(r, "boardID"), req.Title, s.origin(r))
	if err != nil {
		s.respondBoardError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, col)
}

func (s *Server) handleRenameColumn(w http.ResponseWriter, r *http.Request) {
	var req createColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	col, err := s.boards.RenameColumn(r.Context(), chi.URLParam(r, "columnID"), req.Title, s.origin(r))
	if err != nil {
		s.respondBoardError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, col)
}

func (s *Server) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	if err := s.boards.DeleteColumn(r.Context(), chi.URLParam(r, "columnID"), s.origin(r)); err != nil {
		s.respondBoardError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type createCardRequest struct {
	ColumnID *string  `json:"columnId"`
	Content  string   `json:"content"`
	X        *float64 `json:"positionX,omitempty"`
	Y        *float64 `json:"positionY,omitempty"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ac := AuthFrom(r.Context())
	card, err := s.boards.CreateCard(r.Context(), boardservice.CreateCardRequest{
		BoardID:  chi.URLParam(r, "boardID"),
		ColumnID: req.ColumnID,
		Content:  req.Content,
		AuthorID: ac.Identity.UserID,
		X:        req.X,
		Y:        req.Y,
		Origin:   s.origin(r),
	})
	if err != nil {
		s.respondBoardError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, card)
}

// moveCardRequest names the target container and where in it the card lands.
// placement is one of "start", "end", "after", "before"; refId names the
// neighbor for the latter two.
type moveCardRequest struct {
	ColumnID  *string  `json:"columnId"`
	Placement string   `json:"placement"`
	RefID     string   `json:"refId,omitempty"`
	X         *float64 `json:"positionX,omitempty"`
	Y         *float64 `json:"positionY,omitempty"`
}

func (s *Server) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	var req moveCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	var pos order.Position
	switch req.Placement {
	case "start":
		pos = order.AtStart
	case "end", "":
		pos = order.AtEnd
	case "after":
		pos = order.After
	case "before":
		pos = order.Before
	default:
		respondError(w, http.StatusBadRequest, "unknown placement")
		return
	}
	card, err := s.boards.MoveCard(r.Context(), boardservice.MoveCardRequest{
		CardID:     chi.URLParam(r, "cardID"),
		ToColumnID: req.ColumnID,
		Intent:     order.Intent{Position: pos, RefID: req.RefID},
		X:          req.X,
		Y:          req.Y,
		Origin:     s.origin(r),
	})
	if err != nil {
		s.respondBoardError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// respondBoardError maps board service errors onto statuses. A stale order
// reference gets 409: the client must re-fetch the board and retry with
// fresh neighbor ids.
func (s *Server) respondBoardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, boardservice.ErrInvalidInput), errors.Is(err, boardservice.ErrUnknownTemplate):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, boardservice.ErrBoardNotFound),
		errors.Is(err, boardservice.ErrColumnNotFound),
		errors.Is(err, boardservice.ErrCardNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusConflict, "ordering reference no longer exists; refresh and retry")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) origin(r *http.Request) boardservice.Origin {
	ac := AuthFrom(r.Context())
	o := boardservice.Origin{TabID: hub.TabID(r)}
	if ac != nil {
		o.SessionID = ac.Session.ID
	}
	return o
}

// admitter adapts the session trust stack to websocket admission. Rejection
// reasons are deliberately generic; the details land in the audit log.
func (s *Server) admitter() hub.Admitter {
	return admitFunc(func(r *http.Request) (hub.Identity, error) {
		ctx := auditpkg.WithRequestIP(r.Context(), r)
		token := trust.SessionToken(r)
		if token == "" {
			return hub.Identity{}, errors.New("authentication required")
		}
		if res := trust.ValidateTokenStructure(token); !res.IsValid {
			return hub.Identity{}, errors.New("invalid session token")
		}
		sessionID, userID, err := s.tokens.Validate(token)
		if err != nil {
			return hub.Identity{}, errors.New("invalid session token")
		}
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return hub.Identity{}, errors.New("session expired")
		}
		if sess.UserID != userID {
			return hub.Identity{}, errors.New("session mismatch")
		}
		if verdict := s.sessions.Check(ctx, r, sess); !verdict.IsValid {
			return hub.Identity{}, errors.New("session rejected")
		}
		u, err := s.users.GetByID(ctx, sess.UserID)
		if err != nil || u == nil {
			return hub.Identity{}, errors.New("session rejected")
		}
		return hub.Identity{SessionID: sess.ID, UserID: u.ID, UserName: u.Name}, nil
	})
}

type admitFunc func(r *http.Request) (hub.Identity, error)

func (f admitFunc) Admit(r *http.Request) (hub.Identity, error) {
	return f(r)
}

// SessionControl adapts the session service to the hub's heartbeat and
// rotation needs.
type SessionControl struct {
	Sessions *sessionservice.Service
}

func (c SessionControl) Alive(ctx context.Context, sessionID string) bool {
	_, err := c.Sessions.Get(ctx, sessionID)
	return err == nil
}

func (c SessionControl) Rotate(ctx context.Context, sessionID string) (string, error) {
	fresh, err := c.Sessions.Rotate(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return fresh.ID, nil
}
