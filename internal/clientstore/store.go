package clientstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/event"
	"github.com/Md-KamranQutub/chatify/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUnknownEntry = errors.New("clientstore: no such entry")

// Transport is the request/response side of the server API.
type Transport interface {
	SendMessage(ctx context.Context, d Draft) (*model.PopulatedMessage, error)
	MarkRead(ctx context.Context, messageIDs []string) error
	DeleteMessage(ctx context.Context, messageID string) error
	ListConversations(ctx context.Context) ([]model.ConversationView, error)
	FetchMessages(ctx context.Context, conversationID string) ([]model.PopulatedMessage, error)
}

// PresenceInfo is the last presence pushed for a user.
type PresenceInfo struct {
	IsOnline bool
	LastSeen *time.Time
}

// Store is the client-side mirror of conversations and messages. Network
// calls run outside the lock; every mutation of the mirror holds it.
type Store struct {
	mu sync.Mutex

	self      string
	transport Transport
	logger    *zap.Logger
	newTempID func() string

	active        string
	entries       []Entry
	conversations []model.ConversationView
	typing        map[string]map[string]struct{}
	presence      map[string]PresenceInfo
}

func New(self string, transport Transport, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		self:      self,
		transport: transport,
		logger:    logger,
		newTempID: func() string { return tempIDPrefix + uuid.NewString() },
		typing:    make(map[string]map[string]struct{}),
		presence:  make(map[string]PresenceInfo),
	}
}

// -----------------------------------------------------------------
// Loading
// -----------------------------------------------------------------

func (s *Store) LoadConversations(ctx context.Context) error {
	convs, err := s.transport.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}

	s.mu.Lock()
	s.conversations = convs
	s.mu.Unlock()
	return nil
}

// Open makes conversationID active and replaces its confirmed messages with
// the server's copy. Unconfirmed entries survive.
func (s *Store) Open(ctx context.Context, conversationID string) error {
	msgs, err := s.transport.FetchMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Entry, 0, len(s.entries)+len(msgs))
	for _, e := range s.entries {
		if _, ok := e.(Confirmed); ok && conversationOf(e) == conversationID {
			continue
		}
		kept = append(kept, e)
	}
	for _, m := range msgs {
		kept = append(kept, Confirmed{Message: m})
	}
	s.entries = kept
	s.active = conversationID

	// the server resets the counter when a participant fetches
	if c := s.conversationLocked(conversationID); c != nil {
		c.UnreadCount = 0
	}
	return nil
}

// -----------------------------------------------------------------
// Sending
// -----------------------------------------------------------------

// Send appends an optimistic entry, then swaps it in place for the server's
// message, or marks it Failed.
func (s *Store) Send(ctx context.Context, d Draft) (Entry, error) {
	s.mu.Lock()
	if d.ConversationID == "" {
		d.ConversationID = s.conversationWithLocked(d.ReceiverID)
	}
	pending := Pending{TempID: s.newTempID(), Draft: d}
	s.entries = append(s.entries, pending)
	s.mu.Unlock()

	return s.deliver(ctx, pending)
}

// Retry re-sends a Failed entry from its current position.
func (s *Store) Retry(ctx context.Context, tempID string) (Entry, error) {
	s.mu.Lock()
	i := s.indexLocked(tempID)
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrUnknownEntry
	}
	failed, ok := s.entries[i].(Failed)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("clientstore: entry %s is not failed", tempID)
	}
	pending := Pending{TempID: failed.TempID, Draft: failed.Draft}
	s.entries[i] = pending
	s.mu.Unlock()

	return s.deliver(ctx, pending)
}

// Discard drops a Failed entry.
func (s *Store) Discard(tempID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(tempID)
	if i < 0 {
		return ErrUnknownEntry
	}
	if _, ok := s.entries[i].(Failed); !ok {
		return fmt.Errorf("clientstore: entry %s is not failed", tempID)
	}
	s.removeLocked(i)
	return nil
}

func (s *Store) deliver(ctx context.Context, p Pending) (Entry, error) {
	msg, sendErr := s.transport.SendMessage(ctx, p.Draft)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(p.TempID)
	if sendErr != nil {
		failed := Failed{TempID: p.TempID, Draft: p.Draft, Reason: sendErr.Error()}
		if i >= 0 {
			s.entries[i] = failed
		} else {
			s.entries = append(s.entries, failed)
		}
		s.logger.Debug("send failed", zap.String("temp_id", p.TempID), zap.Error(sendErr))
		return failed, sendErr
	}

	confirmed := Confirmed{Message: *msg}
	switch j := s.indexLocked(msg.ID); {
	case j >= 0:
		// a fetch or push landed the server copy first; it stays the one
		// representation
		if existing, ok := s.entries[j].(Confirmed); ok {
			confirmed = existing
		}
		if i >= 0 {
			s.removeLocked(i)
		}
	case i >= 0:
		s.entries[i] = confirmed
	default:
		// discarded locally while in flight
		s.entries = append(s.entries, confirmed)
	}
	s.previewLocked(*msg, false)
	return confirmed, nil
}

// -----------------------------------------------------------------
// Inbound
// -----------------------------------------------------------------

// Receive applies a pushed message and reports whether it was new.
func (s *Store) Receive(ctx context.Context, msg model.PopulatedMessage) bool {
	s.mu.Lock()
	if s.indexLocked(msg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.entries = append(s.entries, Confirmed{Message: msg})
	forMe := msg.ReceiverID == s.self
	s.previewLocked(msg, forMe)
	markNow := forMe && msg.ConversationID == s.active
	s.mu.Unlock()

	if markNow {
		if err := s.MarkRead(ctx); err != nil {
			s.logger.Warn("auto mark-read failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return true
}

// MarkRead reports every unread message addressed to the local user in the
// active conversation as read.
func (s *Store) MarkRead(ctx context.Context) error {
	s.mu.Lock()
	active := s.active
	var ids []string
	for _, e := range s.entries {
		c, ok := e.(Confirmed)
		if !ok || c.Message.ConversationID != active {
			continue
		}
		if c.Message.ReceiverID == s.self && c.Message.MessageStatus != model.MessageStatusRead {
			ids = append(ids, c.Message.ID)
		}
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	if err := s.transport.MarkRead(ctx, ids); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.advanceLocked(id, model.MessageStatusRead)
	}
	if c := s.conversationLocked(active); c != nil {
		c.UnreadCount = 0
	}
	return nil
}

// ApplyStatusUpdate advances a message's status and ignores anything that
// would move it backwards.
func (s *Store) ApplyStatusUpdate(messageID string, status model.MessageStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(messageID, status)
}

// ApplyReactionUpdate replaces the message's reactions wholesale.
func (s *Store) ApplyReactionUpdate(messageID string, reactions []model.Reaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(messageID)
	if i < 0 {
		return false
	}
	c, ok := s.entries[i].(Confirmed)
	if !ok {
		return false
	}
	c.Message.Reactions = append([]model.Reaction(nil), reactions...)
	s.entries[i] = c
	return true
}

func (s *Store) ApplyDeleted(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(messageID)
	if i < 0 {
		return false
	}
	s.removeLocked(i)
	return true
}

func (s *Store) ApplyTyping(ev model.UserTypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.typing[ev.ConversationID]
	if !ok {
		users = make(map[string]struct{})
		s.typing[ev.ConversationID] = users
	}
	if ev.IsTyping {
		users[ev.UserID] = struct{}{}
	} else {
		delete(users, ev.UserID)
	}
}

func (s *Store) ApplyPresence(ev model.UserStatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[ev.UserID] = PresenceInfo{IsOnline: ev.IsOnline, LastSeen: ev.LastSeen}
}

// Delete removes one of the local user's messages on the server, then here.
// A failed send never reached the server and is only discarded.
func (s *Store) Delete(ctx context.Context, messageID string) error {
	if IsTempID(messageID) {
		return s.Discard(messageID)
	}
	if err := s.transport.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.ApplyDeleted(messageID)
	return nil
}

// HandleEvent routes one socket frame into the mirror.
func (s *Store) HandleEvent(ctx context.Context, ev event.WsEvent) error {
	switch ev.Event {
	case event.EventNewMessage:
		var m model.PopulatedMessage
		if err := ev.Decode(&m); err != nil {
			return err
		}
		s.Receive(ctx, m)
	case event.EventMessageStatusUpdate:
		var p model.MessageStatusEvent
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.ApplyStatusUpdate(p.MessageID, p.MessageStatus)
	case event.EventReactionUpdate:
		var p model.ReactionUpdateEvent
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.ApplyReactionUpdate(p.MessageID, p.Reactions)
	case event.EventMessageDeleted:
		var p model.MessageDeletedEvent
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.ApplyDeleted(p.MessageID)
	case event.EventUserTyping:
		var p model.UserTypingEvent
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.ApplyTyping(p)
	case event.EventUserStatus:
		var p model.UserStatusEvent
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.ApplyPresence(p)
	case event.EventError:
		var p model.ErrorPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.logger.Warn("server reported error", zap.String("code", p.Code), zap.String("message", p.Message))
	default:
		s.logger.Debug("ignoring event", zap.String("event", ev.Event))
	}
	return nil
}

// -----------------------------------------------------------------
// Views
// -----------------------------------------------------------------

// Messages returns the entries of one conversation in order. Pending and
// Failed entries with no conversation yet are included for the active one.
func (s *Store) Messages(conversationID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		conv := conversationOf(e)
		if conv == conversationID || (conv == "" && conversationID == s.active) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) Entry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(key)
	if i < 0 {
		return nil, false
	}
	return s.entries[i], true
}

func (s *Store) Conversations() []model.ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ConversationView(nil), s.conversations...)
}

func (s *Store) Conversation(id string) (model.ConversationView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.conversationLocked(id); c != nil {
		return *c, true
	}
	return model.ConversationView{}, false
}

func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsTyping reports whether userID was last seen typing in conversationID.
func (s *Store) IsTyping(conversationID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typing[conversationID][userID]
	return ok
}

func (s *Store) Presence(userID string) (PresenceInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[userID]
	return p, ok
}

// -----------------------------------------------------------------
// helpers; callers hold s.mu
// -----------------------------------------------------------------

func (s *Store) indexLocked(key string) int {
	for i, e := range s.entries {
		if e.Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

func (s *Store) advanceLocked(messageID string, status model.MessageStatus) bool {
	i := s.indexLocked(messageID)
	if i < 0 {
		return false
	}
	c, ok := s.entries[i].(Confirmed)
	if !ok || status.Rank() <= c.Message.MessageStatus.Rank() {
		return false
	}
	c.Message.MessageStatus = status
	s.entries[i] = c
	return true
}

func (s *Store) conversationLocked(id string) *model.ConversationView {
	if id == "" {
		return nil
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return &s.conversations[i]
		}
	}
	return nil
}

func (s *Store) conversationWithLocked(userID string) string {
	for _, c := range s.conversations {
		for _, p := range c.Participants {
			if p.ID == userID {
				return c.ID
			}
		}
	}
	return ""
}

// previewLocked sets the conversation's last message, creating the
// conversation locally the first time it is seen.
func (s *Store) previewLocked(msg model.PopulatedMessage, countUnread bool) {
	c := s.conversationLocked(msg.ConversationID)
	if c == nil {
		s.conversations = append(s.conversations, model.ConversationView{
			ID:           msg.ConversationID,
			Participants: []model.UserSummary{msg.Sender, msg.Receiver},
		})
		c = &s.conversations[len(s.conversations)-1]
	}

	last := msg
	c.LastMessage = &last
	c.UpdatedAt = msg.CreatedAt
	if countUnread {
		c.UnreadCount++
	}
}
