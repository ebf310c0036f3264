package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConversationStore struct {
	mu     sync.RWMutex
	byID   map[string]*model.Conversation
	byPair map[string]string

	// FailWrites makes every mutating call return this error when set.
	FailWrites error
}

var _ repo.ConversationRepository = (*ConversationStore)(nil)

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID:   make(map[string]*model.Conversation),
		byPair: make(map[string]string),
	}
}

func (s *ConversationStore) FindOrCreate(_ context.Context, a, b string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.PairKey(a, b)
	if id, ok := s.byPair[key]; ok {
		c := *s.byID[id]
		return &c, nil
	}
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}

	now := time.Now().UTC()
	c := &model.Conversation{
		ID:            primitive.NewObjectID().Hex(),
		Participants:  model.CanonicalParticipants(a, b),
		PairKey:       key,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byID[c.ID] = c
	s.byPair[key] = c.ID

	out := *c
	return &out, nil
}

func (s *ConversationStore) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *ConversationStore) ListForUser(_ context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, 0)
	for _, c := range s.byID {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *ConversationStore) SetLastMessage(_ context.Context, id, messageID string, at time.Time) error {
	return s.mutate(id, func(c *model.Conversation) {
		c.LastMessageID = messageID
		c.LastMessageAt = at
	})
}

func (s *ConversationStore) IncrementUnread(_ context.Context, id string) error {
	return s.mutate(id, func(c *model.Conversation) { c.UnreadCount++ })
}

func (s *ConversationStore) ResetUnread(_ context.Context, id string) error {
	return s.mutate(id, func(c *model.Conversation) { c.UnreadCount = 0 })
}

func (s *ConversationStore) mutate(id string, fn func(c *model.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	c, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	return nil
}
