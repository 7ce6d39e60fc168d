package models

import "time"

// Role is the marketplace role of a user.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// User represents a marketplace user. Identity is owned by the external
// provider; this service reads profile fields and maintains presence.
// Stored in the `users` collection.
type User struct {
	ID       string     `bson:"_id" json:"id"`
	Name     string     `bson:"name,omitempty" json:"name,omitempty"`
	Email    string     `bson:"email,omitempty" json:"email,omitempty"`
	Role     Role       `bson:"role,omitempty" json:"role,omitempty"`
	IsOnline bool       `bson:"isOnline" json:"isOnline"`
	LastSeen *time.Time `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
}

// Presence is the derived online state of a user.
type Presence struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
