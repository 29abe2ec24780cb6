package domain

import "time"

// Board is a retrospective board. Columns and cards are scoped to it.
type Board struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Column is an ordered container of cards. Position orders columns
// left-to-right on the board using the same fractional scheme as cards.
type Column struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	Position  float64   `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

// Card is a note card. ColumnID nil means the card sits in the board's
// unassigned pool. CardOrder encodes display order within its container;
// its absolute magnitude is never shown to users. X and Y are optional
// freeform coordinates for boards in canvas mode.
type Card struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	ColumnID  *string   `json:"columnId"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	CardOrder float64   `json:"cardOrder"`
	X         *float64  `json:"positionX,omitempty"`
	Y         *float64  `json:"positionY,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
