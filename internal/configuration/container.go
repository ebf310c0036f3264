package configuration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/auth"
	"github.com/Md-KamranQutub/chatify/internal/cache"
	"github.com/Md-KamranQutub/chatify/internal/db"
	"github.com/Md-KamranQutub/chatify/internal/handler"
	"github.com/Md-KamranQutub/chatify/internal/hub"
	"github.com/Md-KamranQutub/chatify/internal/media"
	"github.com/Md-KamranQutub/chatify/internal/repo"
	"github.com/Md-KamranQutub/chatify/internal/repo/memory"
	"github.com/Md-KamranQutub/chatify/internal/service"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	UpdateHandler  handler.UpdateHandler
	MonitorHandler handler.MonitorHandler
	Hub            *hub.Hub
	Verifier       *auth.Verifier
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisStore  *cache.RedisPresenceStore
}

type stores struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	updates       repo.UpdateRepository
	users         repo.UserRepository
	presence      repo.PresenceRepository
}

func NewLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	return cfg.Build()
}

// BuildContainer wires every component from config.
func BuildContainer(config *Config) (*Container, error) {
	logger, err := NewLogger(config.LogLevel)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config: *config,
		Logger: logger,
	}

	st, err := c.openStores()
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	mediaStore, err := media.NewLocalStore(config.Media.Dir, config.Media.BaseURL)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.Hub = hub.NewHub(hub.Options{
		Presence:       st.presence,
		TypingTimeout:  config.Chat.TypingTimeout.Duration,
		AllowedOrigins: config.Server.AllowedOrigins,
		Logger:         logger.Named("hub"),
	})

	messageService := service.NewMessageService(
		st.conversations, st.messages, st.users, st.presence, mediaStore, c.Hub, logger.Named("messages"))
	updateService := service.NewUpdateService(
		st.updates, st.users, st.presence, mediaStore, c.Hub, config.Chat.UpdateTTL.Duration, logger.Named("updates"))

	// add_reactions and message_read are socket events served by the message pipeline
	c.Hub.SetMessageService(messageService)

	c.Verifier = auth.NewVerifier(config.Auth.JWTSecret)
	c.ChatHandler = handler.NewChatHandler(messageService, logger)
	c.UpdateHandler = handler.NewUpdateHandler(updateService)
	c.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(c.Hub))

	logger.Info("container built",
		zap.String("storage_backend", config.Storage.Backend),
		zap.String("presence_backend", config.Storage.PresenceBackend))
	return c, nil
}

func (c *Container) openStores() (stores, error) {
	var st stores
	config := c.Config

	if config.usesMongo() {
		con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
		if err != nil {
			return st, fmt.Errorf("connect mongo: %w", err)
		}
		c.mongoClient = con
	}

	var users repo.UserStore
	switch config.Storage.Backend {
	case BackendMemory:
		st.conversations = memory.NewConversationStore()
		st.messages = memory.NewMessageStore()
		st.updates = memory.NewUpdateStore()
		users = memory.NewUserStore()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.EnsureConversationIndexes(ctx, c.mongoClient); err != nil {
			return st, fmt.Errorf("conversation indexes: %w", err)
		}
		if err := repo.EnsureUpdateIndexes(ctx, c.mongoClient); err != nil {
			return st, fmt.Errorf("update indexes: %w", err)
		}
		st.conversations = repo.NewConversationRepository(c.mongoClient, c.Logger)
		st.messages = repo.NewMessageRepository(c.mongoClient, c.Logger)
		st.updates = repo.NewUpdateRepository(c.mongoClient, c.Logger)
		users = repo.NewUserRepository(c.mongoClient, c.Logger)
	}
	st.users = users

	switch {
	case config.Storage.PresenceBackend == config.Storage.Backend:
		// presence lives on the user documents
		st.presence = users
	case config.Storage.PresenceBackend == BackendRedis:
		rs, err := cache.NewRedisPresenceStore(config.Storage.RedisURL)
		if err != nil {
			return st, err
		}
		c.redisStore = rs
		st.presence = rs
	case config.Storage.PresenceBackend == BackendMemory:
		st.presence = memory.NewUserStore()
	default:
		st.presence = repo.NewUserRepository(c.mongoClient, c.Logger)
	}
	return st, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	var errs []error

	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.redisStore != nil {
		if err := c.redisStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MongoDB connection: %w", err))
		}
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	return errors.Join(errs...)
}
