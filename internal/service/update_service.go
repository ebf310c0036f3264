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

const DefaultUpdateTTL = 24 * time.Hour

// UpdateService manages ephemeral posts.
type UpdateService struct {
	updates   repo.UpdateRepository
	directory userDirectory
	media     media.Store
	notifier  Notifier
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewUpdateService(
	updates repo.UpdateRepository,
	users repo.UserRepository,
	presence repo.PresenceRepository,
	mediaStore media.Store,
	notifier Notifier,
	ttl time.Duration,
	logger *zap.Logger,
) *UpdateService {
	if ttl <= 0 {
		ttl = DefaultUpdateTTL
	}
	return &UpdateService{
		updates:   updates,
		directory: userDirectory{users: users, presence: presence, notifier: notifier, logger: logger},
		media:     mediaStore,
		notifier:  notifier,
		logger:    logger,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a text or media update and announces it to everyone else
// who is connected.
func (s *UpdateService) Create(ctx context.Context, userID, content string, up *media.Upload) (*model.PopulatedUpdate, error) {
	u := &model.Update{
		ID:          primitive.NewObjectID().Hex(),
		UserID:      userID,
		Content:     content,
		ContentType: model.ContentTypeText,
		Viewers:     []string{},
	}

	switch {
	case up != nil:
		if s.media == nil {
			return nil, validation("media uploads are not enabled")
		}
		url, mimeType, err := s.media.Save(ctx, up)
		if err != nil {
			if errors.Is(err, media.ErrUnsupportedMedia) {
				return nil, validation("unsupported file type")
			}
			return nil, internal("media upload failed", err)
		}
		ct, err := media.ContentTypeFor(mimeType)
		if err != nil {
			removeOrphan(s.media, url, s.logger)
			return nil, validation("unsupported file type")
		}
		u.Content = url
		u.ContentType = ct
	case strings.TrimSpace(content) == "":
		return nil, validation("update content or file is required")
	}

	now := s.now()
	u.CreatedAt = now
	u.ExpiresAt = now.Add(s.ttl)
	if err := s.updates.Insert(ctx, u); err != nil {
		if u.ContentType != model.ContentTypeText {
			removeOrphan(s.media, u.Content, s.logger)
		}
		return nil, internal("failed to persist update", err)
	}

	populated := s.populate(ctx, []model.Update{*u})[0]
	if ev, err := event.New(event.EventNewUpdate, populated); err == nil {
		n := s.notifier.Broadcast(ev, userID)
		s.logger.Debug("update announced", zap.String("update_id", u.ID), zap.Int("recipients", n))
	}
	return &populated, nil
}

// List returns unexpired updates, newest first.
func (s *UpdateService) List(ctx context.Context) ([]model.PopulatedUpdate, error) {
	updates, err := s.updates.ListActive(ctx, s.now())
	if err != nil {
		return nil, internal("failed to load updates", err)
	}
	return s.populate(ctx, updates), nil
}

// View records viewerID once and notifies the owner on the first view.
func (s *UpdateService) View(ctx context.Context, updateID, viewerID string) (*model.Update, error) {
	if !primitive.IsValidObjectID(updateID) {
		return nil, validation("malformed update id")
	}

	u, err := s.updates.FindByID(ctx, updateID)
	if err != nil {
		return nil, fromRepo(err, "update")
	}
	if u.HasViewer(viewerID) {
		return u, nil
	}

	u, err = s.updates.AddViewer(ctx, updateID, viewerID)
	if err != nil {
		return nil, fromRepo(err, "update")
	}

	if ev, err := event.New(event.EventUpdateViewed, model.UpdateViewedEvent{
		UpdateID:     u.ID,
		ViewerID:     viewerID,
		TotalViewers: len(u.Viewers),
		Viewers:      u.Viewers,
	}); err == nil {
		s.notifier.SendToUser(u.UserID, ev)
	}
	return u, nil
}

// Delete removes an update owned by requesterID.
func (s *UpdateService) Delete(ctx context.Context, updateID, requesterID string) error {
	if !primitive.IsValidObjectID(updateID) {
		return validation("malformed update id")
	}

	u, err := s.updates.FindByID(ctx, updateID)
	if err != nil {
		return fromRepo(err, "update")
	}
	if u.UserID != requesterID {
		return forbidden("you can only delete your own updates")
	}
	if err := s.updates.Delete(ctx, updateID); err != nil {
		return fromRepo(err, "update")
	}

	if ev, err := event.New(event.EventUpdateDeleted, model.UpdateDeletedEvent{UpdateID: updateID}); err == nil {
		s.notifier.Broadcast(ev, requesterID)
	}
	return nil
}

func (s *UpdateService) populate(ctx context.Context, updates []model.Update) []model.PopulatedUpdate {
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, u.UserID)
	}
	users := s.directory.load(ctx, ids)

	out := make([]model.PopulatedUpdate, 0, len(updates))
	for _, u := range updates {
		out = append(out, model.PopulatedUpdate{Update: u, User: summaryOf(users, u.UserID)})
	}
	return out
}
