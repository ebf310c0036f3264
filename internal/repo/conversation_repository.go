package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/db"
	"github.com/Md-KamranQutub/chatify/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const ConversationsCollection = "conversations"

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

func NewConversationRepository(con *mongo.Database, logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: db.NewRepository[model.Conversation](con, ConversationsCollection),
		logger:    logger,
	}
}

// legacyPairIndex was a unique multikey index on participants. Mongo applies
// uniqueness per array element, so it allowed one conversation per user.
const legacyPairIndex = "participants_pair"

// indexNotFoundCode is the server code for dropping an index that is absent.
const indexNotFoundCode = 27

// EnsureConversationIndexes makes the canonical pair key unique so two
// concurrent first messages cannot create two conversations, and indexes
// participants for the per-user listing.
func EnsureConversationIndexes(ctx context.Context, con *mongo.Database) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	indexes := con.Collection(ConversationsCollection).Indexes()
	if _, err := indexes.DropOne(ctx, legacyPairIndex); err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Code != indexNotFoundCode {
			return fmt.Errorf("drop %s index: %w", legacyPairIndex, err)
		}
	}

	_, err := indexes.CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("pair_key_unique"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("participants_recent"),
		},
	})
	return err
}

func (r *conversationRepository) FindOrCreate(ctx context.Context, a, b string) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	key := model.PairKey(a, b)
	filter := db.NewFilter().Eq("pair_key", key).Build()
	now := time.Now().UTC()

	// the equality filter seeds pair_key on insert
	conv, err := r.mongoRepo.Upsert(ctx, filter, bson.M{
		"_id":             primitive.NewObjectID().Hex(),
		"participants":    model.CanonicalParticipants(a, b),
		"unread_count":    0,
		"last_message_at": now,
		"created_at":      now,
		"updated_at":      now,
	})
	if mongo.IsDuplicateKeyError(err) {
		// lost the insert race; the winner's document is now readable
		conv, err = r.mongoRepo.FindOne(ctx, filter)
	}
	if err != nil {
		r.logger.Error("failed to find or create conversation",
			zap.String("pair_key", key),
			zap.Error(err),
		)
		return nil, fmt.Errorf("find or create conversation: %w", translate(err))
	}
	return conv, nil
}

// FindByID fetches a conversation document by ID
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	if id == "" {
		return nil, ErrInvalidChannelID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conv, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			r.logger.Debug("conversation not found", zap.String("conversation_id", id))
			return nil, ErrNotFound
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", translate(err))
	}
	return conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participants", userID).Build()
	convs, err := r.mongoRepo.FindAll(ctx, filter, db.SortParams{SortBy: "last_message_at", SortDesc: true})
	if err != nil {
		r.logger.Error("failed to query conversations", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get conversations: %w", translate(err))
	}

	r.logger.Debug("conversations retrieved", zap.String("user_id", userID), zap.Int("count", len(convs)))
	return convs, nil
}

func (r *conversationRepository) SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"last_message_at": at, "updated_at": time.Now().UTC()}}
	if messageID == "" {
		update["$unset"] = bson.M{"last_message_id": ""}
	} else {
		update["$set"].(bson.M)["last_message_id"] = messageID
	}
	return r.apply(ctx, id, update)
}

func (r *conversationRepository) IncrementUnread(ctx context.Context, id string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	return r.apply(ctx, id, bson.M{
		"$inc": bson.M{"unread_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
}

func (r *conversationRepository) ResetUnread(ctx context.Context, id string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	return r.apply(ctx, id, bson.M{"$set": bson.M{"unread_count": 0}})
}

func (r *conversationRepository) apply(ctx context.Context, id string, update bson.M) error {
	res, err := r.mongoRepo.Apply(ctx, bson.M{"_id": id}, update)
	if err != nil {
		r.logger.Error("conversation update failed", zap.String("conversation_id", id), zap.Error(err))
		return fmt.Errorf("update conversation: %w", translate(err))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
