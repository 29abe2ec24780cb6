package repository

import (
	"context"

	"retroboard/backend/internal/board/domain"
	"retroboard/backend/internal/order"
)

// Repository defines persistence for boards, columns, and cards.
type Repository interface {
	GetBoard(ctx context.Context, id string) (*domain.Board, error)
	CreateBoard(ctx context.Context, b *domain.Board) error

	GetColumn(ctx context.Context, id string) (*domain.Column, error)
	ListColumns(ctx context.Context, boardID string) ([]*domain.Column, error)
	CreateColumn(ctx context.Context, c *domain.Column) error
	CreateColumns(ctx context.Context, cols []*domain.Column) error
	RenameColumn(ctx context.Context, id, title string) error
	// DeleteColumn migrates the column's cards to the unassigned pool and
	// deletes the column in one transaction. Cards are never dropped.
	DeleteColumn(ctx context.Context, id string) error

	GetCard(ctx context.Context, id string) (*domain.Card, error)
	// ListCardsByContainer returns the cards of a container ordered by
	// (card_order, id) ascending. columnID nil selects the unassigned pool.
	ListCardsByContainer(ctx context.Context, boardID string, columnID *string) ([]*domain.Card, error)
	CreateCard(ctx context.Context, c *domain.Card) error
	// UpdateCardPlacement moves the card to the given container, order, and
	// optional coordinates.
	UpdateCardPlacement(ctx context.Context, cardID string, columnID *string, cardOrder float64, x, y *float64) error
	// ReplaceOrders applies rebalanced order values to a container's cards in
	// one transaction so a concurrent insert is not clobbered.
	ReplaceOrders(ctx context.Context, boardID string, columnID *string, items []order.Item) error
}
