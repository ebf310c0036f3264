package model

import "time"

// -----------------------------------------------------------------
// WebSocket Event Payloads - Client to Server
// -----------------------------------------------------------------

// UserConnectedPayload announces the connection owner.
type UserConnectedPayload struct {
	UserID string `json:"userId"`
}

// UserStatusRequest asks for another user's presence.
type UserStatusRequest struct {
	UserID string `json:"userId"`
}

// TypingPayload is sent on typing_start and typing_stop.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

// AddReactionPayload toggles a reaction. UserID is informational; the
// server always acts as the authenticated connection owner.
type AddReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId,omitempty"`
}

// MessageReadPayload reports messages the connection owner has read.
type MessageReadPayload struct {
	MessageIDs []string `json:"messageIds"`
}

// -----------------------------------------------------------------
// WebSocket Event Payloads - Server to Client
// -----------------------------------------------------------------

type UserStatusEvent struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type UserTypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageDeletedEvent struct {
	MessageID string `json:"messageId"`
}

type MessageStatusEvent struct {
	MessageID     string        `json:"messageId"`
	MessageStatus MessageStatus `json:"messageStatus"`
}

type ReactionUpdateEvent struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

type UpdateViewedEvent struct {
	UpdateID     string   `json:"updateId"`
	ViewerID     string   `json:"viewerId"`
	TotalViewers int      `json:"totalViewers"`
	Viewers      []string `json:"viewers"`
}

type UpdateDeletedEvent struct {
	UpdateID string `json:"updateId"`
}
