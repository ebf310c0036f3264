package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"
)

// UserStore holds user summaries and their presence fields.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*model.User

	// FailPresence makes SetPresence return this error when set.
	FailPresence error
}

var (
	_ repo.UserRepository     = (*UserStore)(nil)
	_ repo.PresenceRepository = (*UserStore)(nil)
)

func NewUserStore(users ...model.User) *UserStore {
	s := &UserStore{users: make(map[string]*model.User)}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *UserStore) FindByIDs(_ context.Context, ids []string) (map[string]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = *u
		}
	}
	return out, nil
}

func (s *UserStore) SetPresence(_ context.Context, userID string, online bool, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPresence != nil {
		return s.FailPresence
	}
	u, ok := s.users[userID]
	if !ok {
		u = &model.User{ID: userID}
		s.users[userID] = u
	}
	u.IsOnline = online
	seen := lastSeen
	u.LastSeen = &seen
	return nil
}

func (s *UserStore) GetPresence(_ context.Context, userID string) (*model.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	p := &model.Presence{UserID: userID, IsOnline: u.IsOnline}
	if u.LastSeen != nil {
		p.LastSeen = *u.LastSeen
	}
	return p, nil
}
