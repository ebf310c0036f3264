package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"
)

type UpdateStore struct {
	mu      sync.RWMutex
	updates map[string]*model.Update

	// FailWrites makes Insert return this error when set.
	FailWrites error
}

var _ repo.UpdateRepository = (*UpdateStore)(nil)

func NewUpdateStore() *UpdateStore {
	return &UpdateStore{updates: make(map[string]*model.Update)}
}

func (s *UpdateStore) Insert(_ context.Context, u *model.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.updates[u.ID] = cloneUpdate(u)
	return nil
}

func (s *UpdateStore) FindByID(_ context.Context, id string) (*model.Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.updates[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneUpdate(u), nil
}

func (s *UpdateStore) ListActive(_ context.Context, now time.Time) ([]model.Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Update, 0, len(s.updates))
	for _, u := range s.updates {
		if u.ExpiresAt.After(now) {
			out = append(out, *cloneUpdate(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *UpdateStore) AddViewer(_ context.Context, id, viewerID string) (*model.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.updates[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if !u.HasViewer(viewerID) {
		u.Viewers = append(u.Viewers, viewerID)
	}
	return cloneUpdate(u), nil
}

func (s *UpdateStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.updates[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.updates, id)
	return nil
}

func cloneUpdate(u *model.Update) *model.Update {
	out := *u
	out.Viewers = append([]string{}, u.Viewers...)
	return &out
}
