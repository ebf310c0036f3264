package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/event"
	"github.com/Md-KamranQutub/chatify/internal/media"
	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notifier is the fan-out side of the connection registry.
type Notifier interface {
	IsOnline(userID string) bool
	// SendToUser pushes ev to the user's live connection and reports whether
	// one existed. Absent users are dropped silently.
	SendToUser(userID string, ev event.WsEvent) bool
	// Broadcast pushes ev to every live connection except exceptUserID.
	Broadcast(ev event.WsEvent, exceptUserID string) int
}

// CreateMessageInput carries one send request.
type CreateMessageInput struct {
	SenderID   string
	ReceiverID string
	Content    string
	Media      *media.Upload
	// ClaimedStatus is what the client asked for. It is logged only: the
	// initial status is derived from the receiver's live presence.
	ClaimedStatus model.MessageStatus
}

// MessageService is the message delivery pipeline.
type MessageService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	directory     userDirectory
	media         media.Store
	notifier      Notifier
	logger        *zap.Logger
	now           func() time.Time
}

func NewMessageService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	users repo.UserRepository,
	presence repo.PresenceRepository,
	mediaStore media.Store,
	notifier Notifier,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		directory:     userDirectory{users: users, presence: presence, notifier: notifier, logger: logger},
		media:         mediaStore,
		notifier:      notifier,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------
// Create
// -----------------------------------------------------------------

func (s *MessageService) Create(ctx context.Context, in CreateMessageInput) (*model.PopulatedMessage, error) {
	if in.SenderID == "" || in.ReceiverID == "" {
		return nil, validation("senderId and receiverId are required")
	}
	if in.SenderID == in.ReceiverID {
		return nil, validation("sender and receiver must differ")
	}
	hasContent := strings.TrimSpace(in.Content) != ""
	hasMedia := in.Media != nil
	if hasContent == hasMedia {
		return nil, validation("exactly one of message content or media is required")
	}

	msg := &model.Message{
		ID:          primitive.NewObjectID().Hex(),
		SenderID:    in.SenderID,
		ReceiverID:  in.ReceiverID,
		Content:     in.Content,
		ContentType: model.ContentTypeText,
		Reactions:   []model.Reaction{},
	}

	if hasMedia {
		if s.media == nil {
			return nil, validation("media uploads are not enabled")
		}
		url, mimeType, err := s.media.Save(ctx, in.Media)
		if err != nil {
			if errors.Is(err, media.ErrUnsupportedMedia) {
				return nil, validation("unsupported file type")
			}
			return nil, internal("media upload failed", err)
		}
		msg.MediaURL = url
		contentType, err := media.ContentTypeFor(mimeType)
		if err != nil {
			s.discardMedia(msg)
			return nil, validation("unsupported file type")
		}
		msg.ContentType = contentType
	}

	conv, err := s.conversations.FindOrCreate(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		s.discardMedia(msg)
		return nil, internal("failed to resolve conversation", err)
	}
	msg.ConversationID = conv.ID

	msg.MessageStatus = model.MessageStatusSend
	if s.notifier.IsOnline(in.ReceiverID) {
		msg.MessageStatus = model.MessageStatusDelivered
	}
	if in.ClaimedStatus != "" && in.ClaimedStatus != msg.MessageStatus {
		s.logger.Debug("ignoring client-claimed message status",
			zap.String("claimed", string(in.ClaimedStatus)),
			zap.String("derived", string(msg.MessageStatus)),
		)
	}

	now := s.now()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if err := s.messages.Insert(ctx, msg); err != nil {
		s.discardMedia(msg)
		return nil, internal("failed to persist message", err)
	}

	// not atomic with the insert: a failure here leaves lastMessage stale
	// until the next successful write
	if err := s.conversations.SetLastMessage(ctx, conv.ID, msg.ID, now); err != nil {
		s.logger.Error("conversation pointer update failed",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return nil, internal("failed to update conversation", err)
	}
	if err := s.conversations.IncrementUnread(ctx, conv.ID); err != nil {
		s.logger.Error("unread counter update failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return nil, internal("failed to update conversation", err)
	}

	populated := s.populate(ctx, []model.Message{*msg})[0]
	s.push(in.ReceiverID, event.EventNewMessage, populated)

	s.logger.Info("message created",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", conv.ID),
		zap.String("status", string(msg.MessageStatus)),
	)
	return &populated, nil
}

// -----------------------------------------------------------------
// Read receipts
// -----------------------------------------------------------------

// MarkRead sets status read on every listed message addressed to readerID
// and resets the unread counter of each touched conversation.
func (s *MessageService) MarkRead(ctx context.Context, messageIDs []string, readerID string) ([]model.Message, error) {
	if len(messageIDs) == 0 {
		return nil, validation("messageIds are required")
	}
	for _, id := range messageIDs {
		if !primitive.IsValidObjectID(id) {
			return nil, validation("malformed message id: " + id)
		}
	}

	unread, err := s.messages.FindUnread(ctx, repo.UnreadQuery{ReaderID: readerID, MessageIDs: messageIDs})
	if err != nil {
		return nil, internal("failed to load messages", err)
	}
	return s.markRead(ctx, unread)
}

// FetchMessages returns the conversation's messages oldest first and marks
// everything addressed to userID as read.
func (s *MessageService) FetchMessages(ctx context.Context, conversationID, userID string) ([]model.PopulatedMessage, error) {
	if !primitive.IsValidObjectID(conversationID) {
		return nil, validation("malformed conversation id")
	}

	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, fromRepo(err, "conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, forbidden("not a participant of this conversation")
	}

	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, internal("failed to load messages", err)
	}

	unread := Filter(msgs, func(m model.Message) bool {
		return m.ReceiverID == userID && m.MessageStatus.Rank() >= 0 && m.MessageStatus != model.MessageStatusRead
	})
	if _, err := s.markRead(ctx, unread); err != nil {
		return nil, err
	}
	if len(unread) == 0 {
		// the counter resets on every participant fetch
		if err := s.conversations.ResetUnread(ctx, conversationID); err != nil {
			return nil, internal("failed to reset unread count", err)
		}
	}

	for i := range msgs {
		if msgs[i].ReceiverID == userID && msgs[i].MessageStatus.Rank() >= 0 {
			msgs[i].MessageStatus = model.MessageStatusRead
		}
	}
	return s.populate(ctx, msgs), nil
}

func (s *MessageService) markRead(ctx context.Context, unread []model.Message) ([]model.Message, error) {
	if len(unread) == 0 {
		return []model.Message{}, nil
	}

	ids := make([]string, 0, len(unread))
	touched := make(map[string]struct{})
	for _, m := range unread {
		ids = append(ids, m.ID)
		touched[m.ConversationID] = struct{}{}
	}

	if _, err := s.messages.AdvanceStatus(ctx, ids, model.MessageStatusRead); err != nil {
		return nil, internal("failed to mark messages read", err)
	}
	for convID := range touched {
		// coarse: the whole counter resets rather than decrementing per id
		if err := s.conversations.ResetUnread(ctx, convID); err != nil {
			return nil, internal("failed to reset unread count", err)
		}
	}

	for i := range unread {
		unread[i].MessageStatus = model.MessageStatusRead
		s.push(unread[i].SenderID, event.EventMessageStatusUpdate, model.MessageStatusEvent{
			MessageID:     unread[i].ID,
			MessageStatus: model.MessageStatusRead,
		})
	}
	return unread, nil
}

// -----------------------------------------------------------------
// Delete
// -----------------------------------------------------------------

func (s *MessageService) Delete(ctx context.Context, messageID, requesterID string) error {
	if !primitive.IsValidObjectID(messageID) {
		return validation("malformed message id")
	}

	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return fromRepo(err, "message")
	}
	if msg.SenderID != requesterID {
		return forbidden("you can only delete your own messages")
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return fromRepo(err, "message")
	}

	latest, err := s.messages.Latest(ctx, msg.ConversationID)
	switch {
	case err == nil:
		err = s.conversations.SetLastMessage(ctx, msg.ConversationID, latest.ID, latest.CreatedAt)
	case errors.Is(err, repo.ErrNotFound):
		err = s.conversations.SetLastMessage(ctx, msg.ConversationID, "", msg.CreatedAt)
	}
	if err != nil {
		s.logger.Error("failed to recompute last message",
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err),
		)
		return internal("failed to update conversation", err)
	}

	s.push(msg.ReceiverID, event.EventMessageDeleted, model.MessageDeletedEvent{MessageID: messageID})
	return nil
}

// -----------------------------------------------------------------
// Reactions
// -----------------------------------------------------------------

// ToggleReaction adds, switches or removes userID's reaction and returns the
// full reaction list after the change.
func (s *MessageService) ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]model.Reaction, error) {
	if !primitive.IsValidObjectID(messageID) {
		return nil, validation("malformed message id")
	}
	if strings.TrimSpace(emoji) == "" {
		return nil, validation("emoji is required")
	}

	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, fromRepo(err, "message")
	}
	if userID != msg.SenderID && userID != msg.ReceiverID {
		return nil, forbidden("not a participant of this conversation")
	}

	reactions := model.ToggleReaction(msg.Reactions, userID, emoji)
	if err := s.messages.SetReactions(ctx, messageID, reactions); err != nil {
		return nil, fromRepo(err, "message")
	}

	update := model.ReactionUpdateEvent{MessageID: messageID, Reactions: reactions}
	s.push(msg.SenderID, event.EventReactionUpdate, update)
	s.push(msg.ReceiverID, event.EventReactionUpdate, update)
	return reactions, nil
}

// -----------------------------------------------------------------
// Conversations
// -----------------------------------------------------------------

func (s *MessageService) ListConversations(ctx context.Context, userID string) ([]model.ConversationView, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, internal("failed to load conversations", err)
	}

	ids := make([]string, 0, len(convs)*2)
	lasts := make([]model.Message, 0, len(convs))
	lastIdx := make(map[string]int, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Participants...)
		if c.LastMessageID == "" {
			continue
		}
		m, err := s.messages.FindByID(ctx, c.LastMessageID)
		if err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return nil, internal("failed to load last message", err)
			}
			continue
		}
		lastIdx[c.ID] = len(lasts)
		lasts = append(lasts, *m)
	}

	users := s.loadUsers(ctx, ids)
	populatedLasts := s.populateWith(users, lasts)

	views := make([]model.ConversationView, 0, len(convs))
	for _, c := range convs {
		view := model.ConversationView{
			ID:          c.ID,
			UnreadCount: c.UnreadCount,
			UpdatedAt:   c.UpdatedAt,
		}
		for _, p := range c.Participants {
			view.Participants = append(view.Participants, summaryOf(users, p))
		}
		if i, ok := lastIdx[c.ID]; ok {
			last := populatedLasts[i]
			view.LastMessage = &last
		}
		views = append(views, view)
	}
	return views, nil
}

// -----------------------------------------------------------------
// helpers
// -----------------------------------------------------------------

func (s *MessageService) push(userID, name string, payload any) {
	ev, err := event.New(name, payload)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("event", name), zap.Error(err))
		return
	}
	if !s.notifier.SendToUser(userID, ev) {
		s.logger.Debug("recipient offline, push dropped",
			zap.String("event", name),
			zap.String("user_id", userID),
		)
	}
}

func (s *MessageService) populate(ctx context.Context, msgs []model.Message) []model.PopulatedMessage {
	ids := make([]string, 0, len(msgs)*2)
	for _, m := range msgs {
		ids = append(ids, m.SenderID, m.ReceiverID)
	}
	return s.populateWith(s.loadUsers(ctx, ids), msgs)
}

func (s *MessageService) populateWith(users map[string]model.User, msgs []model.Message) []model.PopulatedMessage {
	out := make([]model.PopulatedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.PopulatedMessage{
			Message:  m,
			Sender:   summaryOf(users, m.SenderID),
			Receiver: summaryOf(users, m.ReceiverID),
		})
	}
	return out
}

func (s *MessageService) loadUsers(ctx context.Context, ids []string) map[string]model.User {
	return s.directory.load(ctx, ids)
}

// discardMedia removes the upload of a message that was not persisted.
func (s *MessageService) discardMedia(msg *model.Message) {
	if msg.MediaURL != "" {
		removeOrphan(s.media, msg.MediaURL, s.logger)
	}
}
