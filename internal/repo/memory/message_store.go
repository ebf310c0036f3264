package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"
)

// MessageStore keeps messages in insertion order, which doubles as creation
// order for ties on CreatedAt.
type MessageStore struct {
	mu       sync.RWMutex
	messages []*model.Message

	// FailWrites makes every mutating call return this error when set.
	FailWrites error
}

var _ repo.MessageRepository = (*MessageStore)(nil)

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func (s *MessageStore) Insert(_ context.Context, msg *model.Message) error {
	if msg == nil {
		return repo.ErrInvalidMessage
	}
	if msg.ConversationID == "" {
		return repo.ErrInvalidChannelID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.messages = append(s.messages, clone(msg))
	return nil
}

func (s *MessageStore) FindByID(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m := s.find(id); m != nil {
		return clone(m), nil
	}
	return nil, repo.ErrNotFound
}

func (s *MessageStore) ListByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, 0)
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, *clone(m))
		}
	}
	return out, nil
}

func (s *MessageStore) Latest(_ context.Context, conversationID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.Message
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if latest == nil || !m.CreatedAt.Before(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	return clone(latest), nil
}

func (s *MessageStore) FindUnread(_ context.Context, q repo.UnreadQuery) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := toSet(q.MessageIDs)
	out := make([]model.Message, 0)
	for _, m := range s.messages {
		if m.ReceiverID != q.ReaderID || m.MessageStatus.Rank() >= model.MessageStatusRead.Rank() || m.MessageStatus.Rank() < 0 {
			continue
		}
		if q.ConversationID != "" && m.ConversationID != q.ConversationID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[m.ID]; !ok {
				continue
			}
		}
		out = append(out, *clone(m))
	}
	return out, nil
}

func (s *MessageStore) AdvanceStatus(_ context.Context, ids []string, status model.MessageStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return 0, s.FailWrites
	}

	wanted := toSet(ids)
	var n int64
	for _, m := range s.messages {
		if _, ok := wanted[m.ID]; !ok {
			continue
		}
		if r := m.MessageStatus.Rank(); r < 0 || r >= status.Rank() {
			continue
		}
		m.MessageStatus = status
		m.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (s *MessageStore) SetReactions(_ context.Context, id string, reactions []model.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	m := s.find(id)
	if m == nil {
		return repo.ErrNotFound
	}
	m.Reactions = append([]model.Reaction(nil), reactions...)
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MessageStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *MessageStore) find(id string) *model.Message {
	for _, m := range s.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func clone(m *model.Message) *model.Message {
	out := *m
	out.Reactions = append([]model.Reaction{}, m.Reactions...)
	return &out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
