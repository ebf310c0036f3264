package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/db"
	"github.com/Md-KamranQutub/chatify/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const MessagesCollection = "messages"

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

func NewMessageRepository(con *mongo.Database, logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: db.NewRepository[model.Message](con, MessagesCollection),
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ConversationID == "" {
		return ErrInvalidChannelID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	attempt := 0
	err := withRetry(ctx, func() error {
		attempt++
		_, err := m.mongoRepo.Create(ctx, *msg)
		if err != nil && isRetryableError(err) {
			m.logger.Warn("insert attempt failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxRetries),
			)
		}
		return err
	})
	if err != nil {
		m.logger.Error("failed to insert message after all retries",
			zap.Error(err),
			zap.String("conversation_id", msg.ConversationID),
		)
		return fmt.Errorf("insert message failed: %w", translate(err))
	}

	m.logger.Debug("message inserted",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", msg.ConversationID),
		zap.Int("attempt", attempt),
	)
	return nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (m *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msg, err := m.mongoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, m.handleReadError(err, id)
	}
	return msg, nil
}

func (m *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidChannelID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID).Build()

	var result []model.Message
	err := withRetry(ctx, func() error {
		var err error
		result, err = m.mongoRepo.FindAll(ctx, filter, db.SortParams{SortBy: "created_at"})
		return err
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}
	return result, nil
}

func (m *messageRepository) Latest(ctx context.Context, conversationID string) (*model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID).Build()
	msgs, err := m.mongoRepo.FindAll(ctx, filter, db.SortParams{SortBy: "created_at", SortDesc: true, Limit: 1})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (m *messageRepository) FindUnread(ctx context.Context, q UnreadQuery) ([]model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("receiver_id", q.ReaderID).
		In("message_status", model.MessageStatusRead.Below()).
		EqIf("conversation_id", q.ConversationID)
	if len(q.MessageIDs) > 0 {
		filter.In("_id", q.MessageIDs)
	}

	msgs, err := m.mongoRepo.FindAll(ctx, filter.Build(), db.SortParams{SortBy: "created_at"})
	if err != nil {
		return nil, m.handleReadError(err, q.ConversationID)
	}
	return msgs, nil
}

// -----------------------------------------------------------------------------
// Targeted writes
// -----------------------------------------------------------------------------

func (m *messageRepository) AdvanceStatus(ctx context.Context, ids []string, status model.MessageStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// the status guard keeps the lifecycle forward-only at the store level
	filter := db.NewFilter().
		In("_id", ids).
		In("message_status", status.Below()).
		Build()

	res, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{
		"message_status": status,
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		m.logger.Error("status update failed", zap.Strings("message_ids", ids), zap.Error(err))
		return 0, fmt.Errorf("advance message status: %w", translate(err))
	}
	return res.ModifiedCount, nil
}

func (m *messageRepository) SetReactions(ctx context.Context, id string, reactions []model.Reaction) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{
		"reactions":  reactions,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		m.logger.Error("reaction update failed", zap.String("message_id", id), zap.Error(err))
		return fmt.Errorf("set reactions: %w", translate(err))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *messageRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := m.mongoRepo.DeleteByID(ctx, id)
	if err != nil {
		m.logger.Error("message delete failed", zap.String("message_id", id), zap.Error(err))
		return fmt.Errorf("delete message: %w", translate(err))
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *messageRepository) handleReadError(err error, key string) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	m.logger.Error("read failed", zap.Error(err), zap.String("key", key))
	return fmt.Errorf("read messages failed: %w", translate(err))
}
