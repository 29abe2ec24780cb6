// Package server wires the HTTP surface: credential auth, board mutations,
// the websocket endpoint, and the session middleware that runs the trust
// check on every authenticated request.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authservice "retroboard/backend/internal/auth"
	boardservice "retroboard/backend/internal/board/service"
	"retroboard/backend/internal/hub"
	"retroboard/backend/internal/security"
	sessionservice "retroboard/backend/internal/session/service"
	"retroboard/backend/internal/trust"
	userrepo "retroboard/backend/internal/user/repository"
)

// Pinger is anything with a context-aware liveness probe, typically *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config is the server's own configuration slice.
type Config struct {
	Addr         string
	CookieDomain string
	Production   bool
	// AllowedOrigins gates websocket upgrades. Empty allows same-host only.
	AllowedOrigins []string
}

// Server is the HTTP front of the application.
type Server struct {
	cfg      Config
	auth     *authservice.Service
	sessions *sessionservice.Service
	boards   *boardservice.Service
	users    userrepo.Repository
	tokens   *security.TokenProvider
	realtime *hub.Hub
	db       Pinger

	http *http.Server
}

// New assembles the router and returns a ready-to-start server.
func New(cfg Config, auth *authservice.Service, sessions *sessionservice.Service, boards *boardservice.Service, users userrepo.Repository, tokens *security.TokenProvider, realtime *hub.Hub, db Pinger) *Server {
	s := &Server{
		cfg:      cfg,
		auth:     auth,
		sessions: sessions,
		boards:   boards,
		users:    users,
		tokens:   tokens,
		realtime: realtime,
		db:       db,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", s.handleLogin)

		api.Group(func(priv chi.Router) {
			priv.Use(s.authenticate)
			priv.Post("/auth/logout", s.handleLogout)

			priv.Post("/boards", s.handleCreateBoard)
			priv.Get("/boards/{boardID}", s.handleBoardSnapshot)
			priv.Post("/boards/{boardID}/columns", s.handleCreateColumn)
			priv.Patch("/columns/{columnID}", s.handleRenameColumn)
			priv.Delete("/columns/{columnID}", s.handleDeleteColumn)
			priv.Post("/boards/{boardID}/cards", s.handleCreateCard)
			priv.Patch("/cards/{cardID}/position", s.handleMoveCard)
		})
	})

	wsHandler := hub.NewHandler(s.realtime, s.admitter(), s.checkOrigin)
	r.Get("/ws", wsHandler.ServeHTTP)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// checkOrigin implements the websocket origin policy. An empty allow list
// falls back to gorilla's same-host default.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return r.Header.Get("Origin") == "" || sameHostOrigin(r)
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, trust.NewSessionCookie(token, s.cfg.CookieDomain, time.Until(expiresAt), s.cfg.Production))
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, trust.ClearSessionCookie(s.cfg.CookieDomain, s.cfg.Production))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
