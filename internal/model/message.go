package model

import "time"

// MessageStatus is the delivery state of a persisted message.
type MessageStatus string

const (
	MessageStatusSend      MessageStatus = "send"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Rank orders the forward lifecycle send < delivered < read.
// Failed and unknown values rank -1 and never win a comparison.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSend:
		return 0
	case MessageStatusDelivered:
		return 1
	case MessageStatusRead:
		return 2
	default:
		return -1
	}
}

// Below returns every forward status ranked strictly lower than s.
func (s MessageStatus) Below() []MessageStatus {
	below := make([]MessageStatus, 0, 2)
	for _, st := range []MessageStatus{MessageStatusSend, MessageStatusDelivered} {
		if st.Rank() < s.Rank() {
			below = append(below, st)
		}
	}
	return below
}

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
)

// Message represents a chat message in MongoDB
type Message struct {
	ID             string        `json:"id" bson:"_id"`
	ConversationID string        `json:"conversationId" bson:"conversation_id"`
	SenderID       string        `json:"senderId" bson:"sender_id"`
	ReceiverID     string        `json:"receiverId" bson:"receiver_id"`
	Content        string        `json:"content" bson:"content"`
	MediaURL       string        `json:"mediaUrl,omitempty" bson:"media_url,omitempty"`
	ContentType    ContentType   `json:"contentType" bson:"content_type"`
	MessageStatus  MessageStatus `json:"messageStatus" bson:"message_status"`
	Reactions      []Reaction    `json:"reactions" bson:"reactions"`
	CreatedAt      time.Time     `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updatedAt" bson:"updated_at"`
}

// Reaction represents a reaction on a message. At most one per user.
type Reaction struct {
	UserID string `json:"userId" bson:"user_id"`
	Emoji  string `json:"emoji" bson:"emoji"`
}

// PopulatedMessage is a Message with sender and receiver resolved to user summaries.
type PopulatedMessage struct {
	Message
	Sender   UserSummary `json:"sender"`
	Receiver UserSummary `json:"receiver"`
}

// ErrorPayload represents an error response sent to client via WebSocket
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
