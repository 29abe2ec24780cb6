// Package service implements board mutations: card placement through the
// fractional order engine, column lifecycle, and board templates. Every
// mutation is persisted first and then announced to the realtime layer.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"retroboard/backend/internal/board/domain"
	"retroboard/backend/internal/board/repository"
	"retroboard/backend/internal/order"
)

// Sentinel errors; handlers map them to HTTP statuses.
var (
	// ErrBoardNotFound is returned when the board id is unknown.
	ErrBoardNotFound = errors.New("board not found")
	// ErrColumnNotFound is returned when the column id is unknown or belongs
	// to another board.
	ErrColumnNotFound = errors.New("column not found")
	// ErrCardNotFound is returned when the card id is unknown.
	ErrCardNotFound = errors.New("card not found")
	// ErrInvalidInput is returned for empty titles or card content.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownTemplate is returned when a template name is not registered.
	ErrUnknownTemplate = errors.New("unknown template")
)

// Origin identifies the connection that initiated a mutation. The realtime
// layer uses it to suppress echoing the event back to the originating tab.
type Origin struct {
	SessionID string
	TabID     string
}

// Notifier announces persisted mutations to the realtime layer. Implemented
// by the hub; a nil Notifier disables broadcasting.
type Notifier interface {
	CardCreated(boardID string, card *domain.Card, origin Origin)
	CardMoved(boardID string, card *domain.Card, origin Origin)
	ColumnCreated(boardID string, col *domain.Column, origin Origin)
	ColumnRenamed(boardID string, col *domain.Column, origin Origin)
	ColumnDeleted(boardID, columnID string, origin Origin)
	// CardsRebalanced carries the full reassigned ordering of one container.
	CardsRebalanced(boardID string, columnID *string, items []order.Item)
}

// Templates maps template names to the column titles they create.
var Templates = map[string][]string{
	"mad-sad-glad":        {"Mad", "Sad", "Glad"},
	"start-stop-continue": {"Start", "Stop", "Continue"},
	"went-well":           {"Went Well", "To Improve", "Action Items"},
}

// Service mutates boards, columns, and cards.
type Service struct {
	repo     repository.Repository
	notifier Notifier
	nowF     func() time.Time
	idF      func() string
}

// New returns a board Service. notifier may be nil.
func New(repo repository.Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		nowF:     func() time.Time { return time.Now().UTC() },
		idF:      uuid.NewString,
	}
}

// SetNotifier wires the realtime layer in after construction.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Snapshot is the full state of a board: its columns and all cards,
// each container already in display order.
type Snapshot struct {
	Board   *domain.Board    `json:"board"`
	Columns []*domain.Column `json:"columns"`
	Cards   []*domain.Card   `json:"cards"`
}

// CreateBoard creates a board, optionally applying a named template.
func (s *Service) CreateBoard(ctx context.Context, title, template string) (*domain.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	b := &domain.Board{
		ID:        s.idF(),
		Title:     title,
		CreatedAt: s.nowF(),
	}
	if err := s.repo.CreateBoard(ctx, b); err != nil {
		return nil, err
	}
	if template != "" {
		if _, err := s.ApplyTemplate(ctx, b.ID, template); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// GetSnapshot returns the board with its columns and cards. Cards are sorted
// per container by the repository; clients render them in slice order.
func (s *Service) GetSnapshot(ctx context.Context, boardID string) (*Snapshot, error) {
	b, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBoardNotFound
	}
	cols, err := s.repo.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	var cards []*domain.Card
	pool, err := s.repo.ListCardsByContainer(ctx, boardID, nil)
	if err != nil {
		return nil, err
	}
	cards = append(cards, pool...)
	for _, c := range cols {
		in, err := s.repo.ListCardsByContainer(ctx, boardID, &c.ID)
		if err != nil {
			return nil, err
		}
		cards = append(cards, in...)
	}
	return &Snapshot{Board: b, Columns: cols, Cards: cards}, nil
}

// ApplyTemplate creates the template's columns on the board with evenly
// spaced positions. The board must have no columns yet.
func (s *Service) ApplyTemplate(ctx context.Context, boardID, template string) ([]*domain.Column, error) {
	titles, ok := Templates[template]
	if !ok {
		return nil, ErrUnknownTemplate
	}
	b, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBoardNotFound
	}
	existing, err := s.repo.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrInvalidInput
	}
	positions := order.InitialOrders(len(titles))
	now := s.nowF()
	cols := make([]*domain.Column, len(titles))
	for i, title := range titles {
		cols[i] = &domain.Column{
			ID:        s.idF(),
			BoardID:   boardID,
			Title:     title,
			Position:  positions[i],
			CreatedAt: now,
		}
	}
	if err := s.repo.CreateColumns(ctx, cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// CreateColumn appends a column at the right edge of the board.
func (s *Service) CreateColumn(ctx context.Context, boardID, title string, origin Origin) (*domain.Column, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	b, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBoardNotFound
	}
	existing, err := s.repo.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	items := make([]order.Item, len(existing))
	for i, c := range existing {
		items[i] = order.Item{ID: c.ID, Order: c.Position}
	}
	pos, err := order.Compute(items, order.Intent{Position: order.AtEnd})
	if err != nil {
		return nil, err
	}
	col := &domain.Column{
		ID:        s.idF(),
		BoardID:   boardID,
		Title:     title,
		Position:  pos,
		CreatedAt: s.nowF(),
	}
	if err := s.repo.CreateColumn(ctx, col); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.ColumnCreated(boardID, col, origin)
	}
	return col, nil
}

// RenameColumn sets a column's title.
func (s *Service) RenameColumn(ctx context.Context, columnID, title string, origin Origin) (*domain.Column, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	col, err := s.repo.GetColumn(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, ErrColumnNotFound
	}
	if err := s.repo.RenameColumn(ctx, columnID, title); err != nil {
		return nil, err
	}
	col.Title = title
	if s.notifier != nil {
		s.notifier.ColumnRenamed(col.BoardID, col, origin)
	}
	return col, nil
}

// DeleteColumn removes a column. Its cards survive in the board's unassigned
// pool, keeping their relative order.
func (s *Service) DeleteColumn(ctx context.Context, columnID string, origin Origin) error {
	col, err := s.repo.GetColumn(ctx, columnID)
	if err != nil {
		return err
	}
	if col == nil {
		return ErrColumnNotFound
	}
	if err := s.repo.DeleteColumn(ctx, columnID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.ColumnDeleted(col.BoardID, columnID, origin)
	}
	return nil
}

// CreateCardRequest describes a new card. ColumnID nil targets the
// unassigned pool.
type CreateCardRequest struct {
	BoardID  string
	ColumnID *string
	Content  string
	AuthorID string
	X, Y     *float64
	Origin   Origin
}

// CreateCard appends a card at the end of its container.
func (s *Service) CreateCard(ctx context.Context, req CreateCardRequest) (*domain.Card, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrInvalidInput
	}
	if err := s.checkContainer(ctx, req.BoardID, req.ColumnID); err != nil {
		return nil, err
	}
	siblings, err := s.containerItems(ctx, req.BoardID, req.ColumnID, "")
	if err != nil {
		return nil, err
	}
	pos, err := order.Compute(siblings, order.Intent{Position: order.AtEnd})
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	card := &domain.Card{
		ID:        s.idF(),
		BoardID:   req.BoardID,
		ColumnID:  req.ColumnID,
		Content:   content,
		AuthorID:  req.AuthorID,
		CardOrder: pos,
		X:         req.X,
		Y:         req.Y,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.CardCreated(req.BoardID, card, req.Origin)
	}
	return card, nil
}

// MoveCardRequest describes a card move. ToColumnID nil targets the
// unassigned pool. The intent names where in the target container the card
// lands; X and Y carry canvas coordinates when the board is in canvas mode.
type MoveCardRequest struct {
	CardID     string
	ToColumnID *string
	Intent     order.Intent
	X, Y       *float64
	Origin     Origin
}

// MoveCard places a card per the intent. Only the moving card's order value
// changes; siblings keep theirs. When midpoint bisection has exhausted the
// gap between neighbors the whole container is rebalanced afterwards and the
// new ordering is broadcast. order.ErrNotFound propagates to the caller,
// which must re-fetch the board and retry with fresh reference ids.
func (s *Service) MoveCard(ctx context.Context, req MoveCardRequest) (*domain.Card, error) {
	card, err := s.repo.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	if err := s.checkContainer(ctx, card.BoardID, req.ToColumnID); err != nil {
		return nil, err
	}
	siblings, err := s.containerItems(ctx, card.BoardID, req.ToColumnID, card.ID)
	if err != nil {
		return nil, err
	}
	pos, err := order.Compute(siblings, req.Intent)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCardPlacement(ctx, card.ID, req.ToColumnID, pos, req.X, req.Y); err != nil {
		return nil, err
	}
	card.ColumnID = req.ToColumnID
	card.CardOrder = pos
	card.X = req.X
	card.Y = req.Y
	card.UpdatedAt = s.nowF()
	if s.notifier != nil {
		s.notifier.CardMoved(card.BoardID, card, req.Origin)
	}
	s.maybeRebalance(ctx, card.BoardID, req.ToColumnID, append(siblings, order.Item{ID: card.ID, Order: pos}))
	return card, nil
}

// maybeRebalance reassigns a container's order values when adjacent gaps have
// collapsed below the usable minimum. Best-effort: a failed rebalance leaves
// the container valid, just cramped.
func (s *Service) maybeRebalance(ctx context.Context, boardID string, columnID *string, items []order.Item) {
	if !order.NeedsRebalancing(items) {
		return
	}
	rebalanced := order.Rebalance(items)
	if err := s.repo.ReplaceOrders(ctx, boardID, columnID, rebalanced); err != nil {
		log.Printf("board: rebalance container: %v", err)
		return
	}
	if s.notifier != nil {
		s.notifier.CardsRebalanced(boardID, columnID, rebalanced)
	}
}

// checkContainer verifies that a target container exists on the board. A nil
// columnID is always valid; it is the unassigned pool.
func (s *Service) checkContainer(ctx context.Context, boardID string, columnID *string) error {
	if columnID == nil {
		return nil
	}
	col, err := s.repo.GetColumn(ctx, *columnID)
	if err != nil {
		return err
	}
	if col == nil || col.BoardID != boardID {
		return ErrColumnNotFound
	}
	return nil
}

// containerItems returns the container's cards as order items, excluding
// excludeID so a card moving within its own container is not its own
// neighbor.
func (s *Service) containerItems(ctx context.Context, boardID string, columnID *string, excludeID string) ([]order.Item, error) {
	cards, err := s.repo.ListCardsByContainer(ctx, boardID, columnID)
	if err != nil {
		return nil, err
	}
	items := make([]order.Item, 0, len(cards))
	for _, c := range cards {
		if c.ID == excludeID {
			continue
		}
		items = append(items, order.Item{ID: c.ID, Order: c.CardOrder})
	}
	return items, nil
}
