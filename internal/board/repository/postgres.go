package repository

import (
	"context"
	"database/sql"
	"errors"

	"retroboard/backend/internal/board/domain"
	"retroboard/backend/internal/order"
)

// PostgresRepository persists boards, columns, and cards in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a board repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetBoard returns the board for id, or nil if not found.
func (r *PostgresRepository) GetBoard(ctx context.Context, id string) (*domain.Board, error) {
	var b domain.Board
	err := r.db.QueryRowContext(ctx, `SELECT id, title, created_at FROM boards WHERE id = $1`, id).
		Scan(&b.ID, &b.Title, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// CreateBoard persists the board.
func (r *PostgresRepository) CreateBoard(ctx context.Context, b *domain.Board) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO boards (id, title, created_at) VALUES ($1, $2, $3)`,
		b.ID, b.Title, b.CreatedAt)
	return err
}

// GetColumn returns the column for id, or nil if not found.
func (r *PostgresRepository) GetColumn(ctx context.Context, id string) (*domain.Column, error) {
	var c domain.Column
	err := r.db.QueryRowContext(ctx,
		`SELECT id, board_id, title, position, created_at FROM columns WHERE id = $1`, id).
		Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListColumns returns the board's columns ordered by (position, id).
func (r *PostgresRepository) ListColumns(ctx context.Context, boardID string) ([]*domain.Column, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, board_id, title, position, created_at FROM columns
		 WHERE board_id = $1 ORDER BY position ASC, id ASC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CreateColumn persists one column.
func (r *PostgresRepository) CreateColumn(ctx context.Context, c *domain.Column) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO columns (id, board_id, title, position, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.BoardID, c.Title, c.Position, c.CreatedAt)
	return err
}

// CreateColumns persists multiple columns in one transaction. Used by the
// template path.
func (r *PostgresRepository) CreateColumns(ctx context.Context, cols []*domain.Column) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range cols {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO columns (id, board_id, title, position, created_at) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.BoardID, c.Title, c.Position, c.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RenameColumn sets the column's title.
func (r *PostgresRepository) RenameColumn(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE columns SET title = $2 WHERE id = $1`, id, title)
	return err
}

// DeleteColumn migrates the column's cards to the unassigned pool, then
// deletes the column, atomically.
func (r *PostgresRepository) DeleteColumn(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `UPDATE cards SET column_id = NULL WHERE column_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM columns WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCard returns the card for id, or nil if not found.
func (r *PostgresRepository) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	var (
		c        domain.Card
		columnID sql.NullString
		x, y     sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, board_id, column_id, content, author_id, card_order, pos_x, pos_y, created_at, updated_at
		 FROM cards WHERE id = $1`, id).
		Scan(&c.ID, &c.BoardID, &columnID, &c.Content, &c.AuthorID, &c.CardOrder, &x, &y, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.ColumnID = nullStringToPtr(columnID)
	c.X = nullFloatToPtr(x)
	c.Y = nullFloatToPtr(y)
	return &c, nil
}

// ListCardsByContainer returns the cards of a container ordered by
// (card_order, id) ascending; the id tiebreak makes the display order
// deterministic when two concurrent inserts computed the same midpoint.
func (r *PostgresRepository) ListCardsByContainer(ctx context.Context, boardID string, columnID *string) ([]*domain.Card, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if columnID == nil {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, board_id, column_id, content, author_id, card_order, pos_x, pos_y, created_at, updated_at
			 FROM cards WHERE board_id = $1 AND column_id IS NULL ORDER BY card_order ASC, id ASC`, boardID)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, board_id, column_id, content, author_id, card_order, pos_x, pos_y, created_at, updated_at
			 FROM cards WHERE board_id = $1 AND column_id = $2 ORDER BY card_order ASC, id ASC`, boardID, *columnID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Card
	for rows.Next() {
		var (
			c    domain.Card
			col  sql.NullString
			x, y sql.NullFloat64
		)
		if err := rows.Scan(&c.ID, &c.BoardID, &col, &c.Content, &c.AuthorID, &c.CardOrder, &x, &y, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.ColumnID = nullStringToPtr(col)
		c.X = nullFloatToPtr(x)
		c.Y = nullFloatToPtr(y)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CreateCard persists one card.
func (r *PostgresRepository) CreateCard(ctx context.Context, c *domain.Card) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (id, board_id, column_id, content, author_id, card_order, pos_x, pos_y, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.BoardID, ptrToNullString(c.ColumnID), c.Content, c.AuthorID, c.CardOrder,
		ptrToNullFloat(c.X), ptrToNullFloat(c.Y), c.CreatedAt, c.UpdatedAt)
	return err
}

// UpdateCardPlacement moves the card to the given container, order, and
// optional coordinates.
func (r *PostgresRepository) UpdateCardPlacement(ctx context.Context, cardID string, columnID *string, cardOrder float64, x, y *float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cards SET column_id = $2, card_order = $3, pos_x = $4, pos_y = $5, updated_at = now() WHERE id = $1`,
		cardID, ptrToNullString(columnID), cardOrder, ptrToNullFloat(x), ptrToNullFloat(y))
	return err
}

// ReplaceOrders applies rebalanced order values in one transaction.
func (r *PostgresRepository) ReplaceOrders(ctx context.Context, boardID string, columnID *string, items []order.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cards SET card_order = $2 WHERE id = $1 AND board_id = $3`,
			it.ID, it.Order, boardID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullStringToPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func ptrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloatToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func ptrToNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
