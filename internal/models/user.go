package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
	IsAdmin        bool
	Suspended      bool
}

// Actor is the verified identity that performs an operation
type Actor struct {
	ID        uuid.UUID
	IsAdmin   bool
	Suspended bool

	// Remote address of the request if known, used as an extra rate limit key
	IP string
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, IsAdmin: u.IsAdmin, Suspended: u.Suspended}
}

// IssuedToken is the signed access token handed to the user after register or login
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}
