package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/db"
	"github.com/Md-KamranQutub/chatify/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const UsersCollection = "users"

// userRepository reads user summaries and owns the presence fields of the
// user document.
type userRepository struct {
	mongoRepo *db.Repository[model.User]
	logger    *zap.Logger
}

// UserStore is the Mongo user collection seen through both ports.
type UserStore interface {
	UserRepository
	PresenceRepository
}

func NewUserRepository(con *mongo.Database, logger *zap.Logger) UserStore {
	return &userRepository{
		mongoRepo: db.NewRepository[model.User](con, UsersCollection),
		logger:    logger,
	}
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	users, err := r.mongoRepo.FindAll(ctx, db.NewFilter().In("_id", ids).Build(), db.SortParams{})
	if err != nil {
		r.logger.Error("failed to load users", zap.Strings("user_ids", ids), zap.Error(err))
		return nil, fmt.Errorf("find users: %w", translate(err))
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *userRepository) SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.Apply(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_online": online, "last_seen": lastSeen}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set presence: %w", translate(err))
	}
	return nil
}

func (r *userRepository) GetPresence(ctx context.Context, userID string) (*model.Presence, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	u, err := r.mongoRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	p := &model.Presence{UserID: u.ID, IsOnline: u.IsOnline}
	if u.LastSeen != nil {
		p.LastSeen = *u.LastSeen
	}
	return p, nil
}
