package model

import "time"

// Update is an ephemeral post that expires after a fixed window.
type Update struct {
	ID          string      `json:"id" bson:"_id"`
	UserID      string      `json:"userId" bson:"user_id"`
	Content     string      `json:"content" bson:"content"`
	ContentType ContentType `json:"contentType" bson:"content_type"`
	Viewers     []string    `json:"viewers" bson:"viewers"`
	ExpiresAt   time.Time   `json:"expiresAt" bson:"expires_at"`
	CreatedAt   time.Time   `json:"createdAt" bson:"created_at"`
}

// HasViewer reports whether userID already viewed the update.
func (u *Update) HasViewer(userID string) bool {
	for _, v := range u.Viewers {
		if v == userID {
			return true
		}
	}
	return false
}

// PopulatedUpdate carries the owner summary.
type PopulatedUpdate struct {
	Update
	User UserSummary `json:"user"`
}
