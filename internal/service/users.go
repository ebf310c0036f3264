package service

import (
	"context"
	"errors"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/media"
	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"

	"go.uber.org/zap"
)

const mediaCleanupTimeout = 5 * time.Second

// userDirectory resolves user summaries. Profile fields come from the user
// store. Online state comes from the live registry and last-seen from the
// presence store, which is not necessarily the user store.
type userDirectory struct {
	users    repo.UserRepository
	presence repo.PresenceRepository
	notifier Notifier
	logger   *zap.Logger
}

// load is best-effort: a failed lookup yields id-only summaries.
func (d userDirectory) load(ctx context.Context, ids []string) map[string]model.User {
	ids = dedupe(ids)
	users, err := d.users.FindByIDs(ctx, ids)
	if err != nil {
		d.logger.Warn("user lookup failed, returning bare ids", zap.Error(err))
		users = make(map[string]model.User, len(ids))
	}

	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			u = model.User{ID: id}
		}
		u.IsOnline = d.notifier.IsOnline(id)
		if d.presence != nil {
			p, err := d.presence.GetPresence(ctx, id)
			switch {
			case err == nil && !p.LastSeen.IsZero():
				seen := p.LastSeen
				u.LastSeen = &seen
			case err != nil && !errors.Is(err, repo.ErrNotFound):
				d.logger.Debug("presence lookup failed", zap.String("user_id", id), zap.Error(err))
			}
		}
		users[id] = u
	}
	return users
}

func summaryOf(users map[string]model.User, id string) model.UserSummary {
	if u, ok := users[id]; ok {
		return u.Summary()
	}
	return model.UserSummary{ID: id}
}

// removeOrphan deletes an upload whose record was never persisted. It runs
// on its own deadline because the request context may be what failed.
func removeOrphan(store media.Store, url string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), mediaCleanupTimeout)
	defer cancel()
	if err := store.Remove(ctx, url); err != nil {
		logger.Warn("failed to remove orphaned media", zap.String("url", url), zap.Error(err))
	}
}
