package repo

import (
	"context"
	"errors"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrInvalidMessage   = errors.New("invalid message: message cannot be nil")
	ErrInvalidChannelID = errors.New("invalid conversation ID: cannot be empty")
	ErrOperationTimeout = errors.New("operation timeout exceeded")
)

// ConversationRepository persists two-party conversations. Every write is a
// targeted field update; nothing overwrites a whole document.
type ConversationRepository interface {
	// FindOrCreate resolves the conversation for the pair regardless of
	// argument order.
	FindOrCreate(ctx context.Context, a, b string) (*model.Conversation, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	// SetLastMessage points the conversation at messageID; an empty id clears it.
	SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error
	IncrementUnread(ctx context.Context, id string) error
	ResetUnread(ctx context.Context, id string) error
}

// UnreadQuery selects messages addressed to ReaderID that are not yet read,
// narrowed either by explicit ids or by conversation.
type UnreadQuery struct {
	ReaderID       string
	MessageIDs     []string
	ConversationID string
}

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	// ListByConversation returns messages oldest first.
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	// Latest returns the most recently created message or ErrNotFound.
	Latest(ctx context.Context, conversationID string) (*model.Message, error)
	FindUnread(ctx context.Context, q UnreadQuery) ([]model.Message, error)
	// AdvanceStatus sets status only on messages currently ranked below it.
	AdvanceStatus(ctx context.Context, ids []string, status model.MessageStatus) (int64, error)
	SetReactions(ctx context.Context, id string, reactions []model.Reaction) error
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	// FindByIDs returns the users that exist, keyed by id.
	FindByIDs(ctx context.Context, ids []string) (map[string]model.User, error)
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error
	GetPresence(ctx context.Context, userID string) (*model.Presence, error)
}

type UpdateRepository interface {
	Insert(ctx context.Context, u *model.Update) error
	FindByID(ctx context.Context, id string) (*model.Update, error)
	// ListActive returns updates expiring after now, newest first.
	ListActive(ctx context.Context, now time.Time) ([]model.Update, error)
	// AddViewer records viewerID once and returns the stored document.
	AddViewer(ctx context.Context, id, viewerID string) (*model.Update, error)
	Delete(ctx context.Context, id string) error
}
