package model

import "time"

// Roles allowed to receive operational alerts.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

type User struct {
	ID           int64
	Email        string
	Name         string
	Role         string
	PasswordHash string
}

type Subscriber struct {
	ID        int64
	Email     string
	Confirmed bool
	CreatedAt time.Time
}
