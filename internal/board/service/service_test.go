package service

import (
	"context"
	"fmt"
	"testing"

	"retroboard/backend/internal/board/domain"
	"retroboard/backend/internal/order"
)

type fakeRepo struct {
	boards  map[string]*domain.Board
	columns map[string]*domain.Column
	cards   map[string]*domain.Card
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		boards:  map[string]*domain.Board{},
		columns: map[string]*domain.Column{},
		cards:   map[string]*domain.Card{},
	}
}

func (f *fakeRepo) GetBoard(_ context.Context, id string) (*domain.Board, error) {
	return f.boards[id], nil
}

func (f *fakeRepo) CreateBoard(_ context.Context, b *domain.Board) error {
	f.boards[b.ID] = b
	return nil
}

func (f *fakeRepo) GetColumn(_ context.Context, id string) (*domain.Column, error) {
	return f.columns[id], nil
}

func (f *fakeRepo) ListColumns(_ context.Context, boardID string) ([]*domain.Column, error) {
	var out []*domain.Column
	for _, c := range f.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateColumn(_ context.Context, c *domain.Column) error {
	f.columns[c.ID] = c
	return nil
}

func (f *fakeRepo) CreateColumns(_ context.Context, cols []*domain.Column) error {
	for _, c := range cols {
		f.columns[c.ID] = c
	}
	return nil
}

func (f *fakeRepo) RenameColumn(_ context.Context, id, title string) error {
	f.columns[id].Title = title
	return nil
}

func (f *fakeRepo) DeleteColumn(_ context.Context, id string) error {
	for _, c := range f.cards {
		if c.ColumnID != nil && *c.ColumnID == id {
			c.ColumnID = nil
		}
	}
	delete(f.columns, id)
	return nil
}

func (f *fakeRepo) GetCard(_ context.Context, id string) (*domain.Card, error) {
	return f.cards[id], nil
}

func (f *fakeRepo) ListCardsByContainer(_ context.Context, boardID string, columnID *string) ([]*domain.Card, error) {
	var out []*domain.Card
	for _, c := range f.cards {
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

func (f *fakeRepo) CreateCard(_ context.Context, c *domain.Card) error {
	f.cards[c.ID] = c
	return nil
}

func (f *fakeRepo) UpdateCardPlacement(_ context.Context, cardID string, columnID *string, cardOrder float64, x, y *float64) error {
	c := f.cards[cardID]
	c.ColumnID = columnID
	c.CardOrder = cardOrder
	c.X = x
	c.Y = y
	return nil
}

func (f *fakeRepo) ReplaceOrders(_ context.Context, _ string, _ *string, items []order.Item) error {
	for _, it := range items {
		f.cards[it.ID].CardOrder = it.Order
	}
	return nil
}

type fakeNotifier struct {
	moved       []*domain.Card
	created     []*domain.Card
	colCreated  []*domain.Column
	colRenamed  []*domain.Column
	colDeleted  []string
	rebalanced  [][]order.Item
	lastOrigins []Origin
}

func (n *fakeNotifier) CardCreated(_ string, c *domain.Card, o Origin) {
	n.created = append(n.created, c)
	n.lastOrigins = append(n.lastOrigins, o)
}

func (n *fakeNotifier) CardMoved(_ string, c *domain.Card, o Origin) {
	n.moved = append(n.moved, c)
	n.lastOrigins = append(n.lastOrigins, o)
}

func (n *fakeNotifier) ColumnCreated(_ string, c *domain.Column, _ Origin) {
	n.colCreated = append(n.colCreated, c)
}

func (n *fakeNotifier) ColumnRenamed(_ string, c *domain.Column, _ Origin) {
	n.colRenamed = append(n.colRenamed, c)
}

func (n *fakeNotifier) ColumnDeleted(_, columnID string, _ Origin) {
	n.colDeleted = append(n.colDeleted, columnID)
}

func (n *fakeNotifier) CardsRebalanced(_ string, _ *string, items []order.Item) {
	n.rebalanced = append(n.rebalanced, items)
}

func newTestService(repo *fakeRepo, n Notifier) *Service {
	svc := New(repo, n)
	i := 0
	svc.idF = func() string {
		i++
		return fmt.Sprintf("id-%03d", i)
	}
	return svc
}

func seedBoard(t *testing.T, svc *Service) *domain.Board {
	t.Helper()
	b, err := svc.CreateBoard(context.Background(), "Sprint 12", "")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	return b
}

func TestCreateBoard_WithTemplate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	b, err := svc.CreateBoard(context.Background(), "Retro", "mad-sad-glad")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	cols, err := repo.ListColumns(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("ListColumns: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("columns: got %d, want 3", len(cols))
	}
	positions := map[float64]bool{}
	for _, c := range cols {
		positions[c.Position] = true
	}
	for _, want := range []float64{1000, 2000, 3000} {
		if !positions[want] {
			t.Errorf("missing column position %v", want)
		}
	}
}

func TestCreateBoard_UnknownTemplate(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil)
	if _, err := svc.CreateBoard(context.Background(), "Retro", "nope"); err != ErrUnknownTemplate {
		t.Errorf("want ErrUnknownTemplate, got %v", err)
	}
}

func TestCreateColumn_AppendsAtEnd(t *testing.T) {
	repo := newFakeRepo()
	n := &fakeNotifier{}
	svc := newTestService(repo, n)
	b := seedBoard(t, svc)

	c1, err := svc.CreateColumn(context.Background(), b.ID, "First", Origin{})
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	c2, err := svc.CreateColumn(context.Background(), b.ID, "Second", Origin{})
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	if c1.Position != 1000 {
		t.Errorf("first column position: got %v, want 1000", c1.Position)
	}
	if c2.Position <= c1.Position {
		t.Errorf("second column position %v not after first %v", c2.Position, c1.Position)
	}
	if len(n.colCreated) != 2 {
		t.Errorf("notifier column created events: got %d, want 2", len(n.colCreated))
	}
}

func TestDeleteColumn_MigratesCardsToPool(t *testing.T) {
	repo := newFakeRepo()
	n := &fakeNotifier{}
	svc := newTestService(repo, n)
	b := seedBoard(t, svc)
	col, err := svc.CreateColumn(context.Background(), b.ID, "Doomed", Origin{})
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	card, err := svc.CreateCard(context.Background(), CreateCardRequest{
		BoardID: b.ID, ColumnID: &col.ID, Content: "survivor", AuthorID: "u1",
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	if err := svc.DeleteColumn(context.Background(), col.ID, Origin{}); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}
	got, _ := repo.GetCard(context.Background(), card.ID)
	if got == nil {
		t.Fatal("card dropped with its column")
	}
	if got.ColumnID != nil {
		t.Errorf("card still assigned to column %q", *got.ColumnID)
	}
	if len(n.colDeleted) != 1 || n.colDeleted[0] != col.ID {
		t.Errorf("column deleted events: %v", n.colDeleted)
	}
}

func TestCreateCard_EmptyContent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	b := seedBoard(t, svc)
	if _, err := svc.CreateCard(context.Background(), CreateCardRequest{
		BoardID: b.ID, Content: "   ",
	}); err != ErrInvalidInput {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}
}

func TestMoveCard_MidpointBetweenNeighbors(t *testing.T) {
	repo := newFakeRepo()
	n := &fakeNotifier{}
	svc := newTestService(repo, n)
	b := seedBoard(t, svc)

	var cards []*domain.Card
	for i := 0; i < 3; i++ {
		c, err := svc.CreateCard(context.Background(), CreateCardRequest{
			BoardID: b.ID, Content: fmt.Sprintf("card %d", i), AuthorID: "u1",
		})
		if err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
		cards = append(cards, c)
	}
	// Orders are 1000, 2000, 3000. Move the last card between the first two.
	moved, err := svc.MoveCard(context.Background(), MoveCardRequest{
		CardID: cards[2].ID,
		Intent: order.Intent{Position: order.After, RefID: cards[0].ID},
		Origin: Origin{SessionID: "s1", TabID: "t1"},
	})
	if err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if moved.CardOrder != 1500 {
		t.Errorf("moved order: got %v, want 1500", moved.CardOrder)
	}
	if len(n.moved) != 1 {
		t.Fatalf("moved events: got %d, want 1", len(n.moved))
	}
	if o := n.lastOrigins[len(n.lastOrigins)-1]; o.TabID != "t1" {
		t.Errorf("origin tab: got %q, want t1", o.TabID)
	}
}

func TestMoveCard_SelfExcludedFromNeighbors(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	b := seedBoard(t, svc)

	var cards []*domain.Card
	for i := 0; i < 2; i++ {
		c, err := svc.CreateCard(context.Background(), CreateCardRequest{
			BoardID: b.ID, Content: fmt.Sprintf("card %d", i), AuthorID: "u1",
		})
		if err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
		cards = append(cards, c)
	}
	// Moving the first card after the second within the same container: with
	// the mover excluded the container holds only [2000], so After appends.
	moved, err := svc.MoveCard(context.Background(), MoveCardRequest{
		CardID: cards[0].ID,
		Intent: order.Intent{Position: order.After, RefID: cards[1].ID},
	})
	if err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if moved.CardOrder != 3000 {
		t.Errorf("moved order: got %v, want 3000", moved.CardOrder)
	}
}

func TestMoveCard_AcrossContainers(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	b := seedBoard(t, svc)
	col, err := svc.CreateColumn(context.Background(), b.ID, "Target", Origin{})
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	card, err := svc.CreateCard(context.Background(), CreateCardRequest{
		BoardID: b.ID, Content: "mover", AuthorID: "u1",
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	moved, err := svc.MoveCard(context.Background(), MoveCardRequest{
		CardID:     card.ID,
		ToColumnID: &col.ID,
		Intent:     order.Intent{Position: order.AtEnd},
	})
	if err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if moved.ColumnID == nil || *moved.ColumnID != col.ID {
		t.Error("card not reassigned to target column")
	}
	if moved.CardOrder != order.BaseOrder {
		t.Errorf("order in empty target: got %v, want %v", moved.CardOrder, order.BaseOrder)
	}
}

func TestMoveCard_StaleReference(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	b := seedBoard(t, svc)
	card, err := svc.CreateCard(context.Background(), CreateCardRequest{
		BoardID: b.ID, Content: "mover", AuthorID: "u1",
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	_, err = svc.MoveCard(context.Background(), MoveCardRequest{
		CardID: card.ID,
		Intent: order.Intent{Position: order.After, RefID: "deleted-card"},
	})
	if err != order.ErrNotFound {
		t.Errorf("want order.ErrNotFound, got %v", err)
	}
}

func TestMoveCard_UnknownTargetColumn(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	b := seedBoard(t, svc)
	card, err := svc.CreateCard(context.Background(), CreateCardRequest{
		BoardID: b.ID, Content: "mover", AuthorID: "u1",
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	bogus := "no-such-column"
	if _, err := svc.MoveCard(context.Background(), MoveCardRequest{
		CardID:     card.ID,
		ToColumnID: &bogus,
		Intent:     order.Intent{Position: order.AtEnd},
	}); err != ErrColumnNotFound {
		t.Errorf("want ErrColumnNotFound, got %v", err)
	}
}

func TestMoveCard_TriggersRebalance(t *testing.T) {
	repo := newFakeRepo()
	n := &fakeNotifier{}
	svc := newTestService(repo, n)
	b := seedBoard(t, svc)

	// Two cards whose gap is already below the usable minimum.
	a := &domain.Card{ID: "a", BoardID: b.ID, Content: "a", CardOrder: 1000}
	c := &domain.Card{ID: "c", BoardID: b.ID, Content: "c", CardOrder: 1000 + order.Epsilon/4}
	repo.cards[a.ID] = a
	repo.cards[c.ID] = c
	mover, err := svc.CreateCard(context.Background(), CreateCardRequest{
		BoardID: b.ID, Content: "mover", AuthorID: "u1",
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	if _, err := svc.MoveCard(context.Background(), MoveCardRequest{
		CardID: mover.ID,
		Intent: order.Intent{Position: order.After, RefID: a.ID},
	}); err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if len(n.rebalanced) != 1 {
		t.Fatalf("rebalance events: got %d, want 1", len(n.rebalanced))
	}
	// After rebalancing, adjacent gaps are uniform again.
	items, _ := repo.ListCardsByContainer(context.Background(), b.ID, nil)
	orders := map[float64]bool{}
	for _, it := range items {
		orders[it.CardOrder] = true
	}
	for _, want := range []float64{1000, 2000, 3000} {
		if !orders[want] {
			t.Errorf("missing rebalanced order %v; got %v", want, orders)
		}
	}
}

func TestGetSnapshot(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	b, err := svc.CreateBoard(context.Background(), "Retro", "start-stop-continue")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if _, err := svc.CreateCard(context.Background(), CreateCardRequest{
		BoardID: b.ID, Content: "pool card", AuthorID: "u1",
	}); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	snap, err := svc.GetSnapshot(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.Columns) != 3 {
		t.Errorf("columns: got %d, want 3", len(snap.Columns))
	}
	if len(snap.Cards) != 1 {
		t.Errorf("cards: got %d, want 1", len(snap.Cards))
	}
}

func TestGetSnapshot_UnknownBoard(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil)
	if _, err := svc.GetSnapshot(context.Background(), "missing"); err != ErrBoardNotFound {
		t.Errorf("want ErrBoardNotFound, got %v", err)
	}
}
