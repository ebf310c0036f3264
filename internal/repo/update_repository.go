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

const UpdatesCollection = "updates"

type updateRepository struct {
	mongoRepo *db.Repository[model.Update]
	logger    *zap.Logger
}

func NewUpdateRepository(con *mongo.Database, logger *zap.Logger) UpdateRepository {
	return &updateRepository{
		mongoRepo: db.NewRepository[model.Update](con, UpdatesCollection),
		logger:    logger,
	}
}

// EnsureUpdateIndexes installs the TTL index that lets Mongo reap expired
// updates on its own.
func EnsureUpdateIndexes(ctx context.Context, con *mongo.Database) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := con.Collection(UpdatesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
	})
	return err
}

func (r *updateRepository) Insert(ctx context.Context, u *model.Update) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.mongoRepo.Create(ctx, *u); err != nil {
		r.logger.Error("failed to insert update", zap.String("user_id", u.UserID), zap.Error(err))
		return fmt.Errorf("insert update: %w", translate(err))
	}
	return nil
}

func (r *updateRepository) FindByID(ctx context.Context, id string) (*model.Update, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	u, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (r *updateRepository) ListActive(ctx context.Context, now time.Time) ([]model.Update, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	// the TTL monitor runs about once a minute, so filter explicitly
	filter := db.NewFilter().Gt("expires_at", now).Build()
	updates, err := r.mongoRepo.FindAll(ctx, filter, db.SortParams{SortBy: "created_at", SortDesc: true})
	if err != nil {
		r.logger.Error("failed to list updates", zap.Error(err))
		return nil, fmt.Errorf("list updates: %w", translate(err))
	}
	return updates, nil
}

func (r *updateRepository) AddViewer(ctx context.Context, id, viewerID string) (*model.Update, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := r.mongoRepo.Apply(ctx, bson.M{"_id": id}, bson.M{"$addToSet": bson.M{"viewers": viewerID}})
	if err != nil {
		return nil, fmt.Errorf("add viewer: %w", translate(err))
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}

	u, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (r *updateRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := r.mongoRepo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete update: %w", translate(err))
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
