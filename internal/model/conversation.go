package model

import (
	"sort"
	"strings"
	"time"
)

// Conversation is a strictly two-party chat. Participants are stored sorted
// ascending so the pair is a direction-independent key.
type Conversation struct {
	ID            string    `json:"id" bson:"_id"`
	Participants  []string  `json:"participants" bson:"participants"`
	PairKey       string    `json:"-" bson:"pair_key"`
	LastMessageID string    `json:"lastMessageId,omitempty" bson:"last_message_id,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt" bson:"last_message_at"`
	UnreadCount   int       `json:"unreadCount" bson:"unread_count"`
	CreatedAt     time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updated_at"`
}

// CanonicalParticipants returns the pair in the stored order.
func CanonicalParticipants(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// PairKey is the scalar form of the canonical pair, used as the unique
// lookup key. Participant IDs never contain '|'.
func PairKey(a, b string) string {
	return strings.Join(CanonicalParticipants(a, b), "|")
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ConversationView is what the conversation list returns.
type ConversationView struct {
	ID           string            `json:"id"`
	Participants []UserSummary     `json:"participants"`
	LastMessage  *PopulatedMessage `json:"lastMessage"`
	UnreadCount  int               `json:"unreadCount"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}
