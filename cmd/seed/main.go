// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	boarddomain "retroboard/backend/internal/board/domain"
	boardrepo "retroboard/backend/internal/board/repository"
	"retroboard/backend/internal/config"
	"retroboard/backend/internal/db"
	"retroboard/backend/internal/order"
	"retroboard/backend/internal/security"
	userdomain "retroboard/backend/internal/user/domain"
	userrepo "retroboard/backend/internal/user/repository"
)

const (
	devUserEmail  = "dev@example.com"
	devPassword   = "password123"
	devUserID     = "dev-user-001"
	devUser2ID    = "dev-user-002"
	memberEmail   = "member@example.com"
	devBoardID    = "dev-board-001"
	devBoardTitle = "Sprint 42 Retro"
)

var devColumnTitles = []string{"Went Well", "To Improve", "Action Items"}

var devCards = []struct {
	content  string
	authorID string
	column   int
}{
	{"Shipped the release a day early", devUserID, 0},
	{"Standups ran long again", devUser2ID, 1},
	{"Pair on the flaky pipeline job", devUserID, 2},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)
	boards := boardrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()

	for _, u := range []*userdomain.User{
		{ID: devUserID, Email: devUserEmail, Name: "Dev User", PasswordHash: passwordHash, Status: userdomain.UserStatusActive, CreatedAt: now, UpdatedAt: now},
		{ID: devUser2ID, Email: memberEmail, Name: "Member User", PasswordHash: passwordHash, Status: userdomain.UserStatusActive, CreatedAt: now, UpdatedAt: now},
	} {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", u.Email, err)
		}
	}

	if err := boards.CreateBoard(ctx, &boarddomain.Board{ID: devBoardID, Title: devBoardTitle, CreatedAt: now}); err != nil {
		log.Fatalf("create board: %v", err)
	}

	positions := order.InitialOrders(len(devColumnTitles))
	cols := make([]*boarddomain.Column, len(devColumnTitles))
	for i, title := range devColumnTitles {
		cols[i] = &boarddomain.Column{
			ID:        fmt.Sprintf("dev-col-%03d", i+1),
			BoardID:   devBoardID,
			Title:     title,
			Position:  positions[i],
			CreatedAt: now,
		}
	}
	if err := boards.CreateColumns(ctx, cols); err != nil {
		log.Fatalf("create columns: %v", err)
	}

	for i, c := range devCards {
		colID := cols[c.column].ID
		card := &boarddomain.Card{
			ID:        fmt.Sprintf("dev-card-%03d", i+1),
			BoardID:   devBoardID,
			ColumnID:  &colID,
			Content:   c.content,
			AuthorID:  c.authorID,
			CardOrder: order.BaseOrder,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := boards.CreateCard(ctx, card); err != nil {
			log.Fatalf("create card: %v", err)
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
	fmt.Printf("Member login: %s / %s\n", memberEmail, devPassword)
}
