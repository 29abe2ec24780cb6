package domain

import (
	"errors"
	"strings"
	"time"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User is a board participant. ID and Name form the public identity carried
// in presence events; Email and PasswordHash never leave the auth layer.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks required fields before persistence.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user: id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("user: email is required")
	}
	if u.Status != UserStatusActive && u.Status != UserStatusDisabled {
		return errors.New("user: invalid status")
	}
	return nil
}

// PublicIdentity is the projection of a user safe to broadcast to other
// board members.
type PublicIdentity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}
