package model

import (
	"time"
)

// User represents a user document in MongoDB. Only the fields this service
// reads or writes are mapped; profile management lives elsewhere.
type User struct {
	ID             string     `json:"id" bson:"_id"`
	Username       string     `json:"username" bson:"username"`
	ProfilePicture string     `json:"profilePicture" bson:"profile_picture"`
	IsOnline       bool       `json:"isOnline" bson:"is_online"`
	LastSeen       *time.Time `json:"lastSeen" bson:"last_seen"`
}

// UserSummary is the populated form of a user reference.
type UserSummary struct {
	ID             string     `json:"id"`
	Username       string     `json:"username,omitempty"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
	IsOnline       bool       `json:"isOnline"`
	LastSeen       *time.Time `json:"lastSeen,omitempty"`
}

// Summary projects a user into its populated form.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		IsOnline:       u.IsOnline,
		LastSeen:       u.LastSeen,
	}
}

// Presence is the persisted online flag and last-seen time of a user.
type Presence struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}
