package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"
)

const presenceKeyPrefix = "presence:"

// RedisPresenceStore satisfies repo.PresenceRepository with one hash per user.
// It wraps a go-redis v9 Client.
type RedisPresenceStore struct {
	client *redis.Client
}

// Ensure interface compliance at compile time
var _ repo.PresenceRepository = (*RedisPresenceStore)(nil)

// NewRedisPresenceStore parses url, connects and pings.
func NewRedisPresenceStore(url string) (*RedisPresenceStore, error) {
	if url == "" {
		return nil, errors.New("redis: url is not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisPresenceStore{client: c}, nil
}

// NewRedisPresenceStoreFromClient wraps an existing client.
func NewRedisPresenceStoreFromClient(c *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{client: c}
}

func (r *RedisPresenceStore) SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	return r.client.HSet(ctx, presenceKeyPrefix+userID,
		"online", strconv.FormatBool(online),
		"last_seen", lastSeen.UTC().Format(time.RFC3339Nano),
	).Err()
}

func (r *RedisPresenceStore) GetPresence(ctx context.Context, userID string) (*model.Presence, error) {
	fields, err := r.client.HGetAll(ctx, presenceKeyPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repo.ErrNotFound
	}

	online, _ := strconv.ParseBool(fields["online"])
	p := &model.Presence{UserID: userID, IsOnline: online}
	if raw := fields["last_seen"]; raw != "" {
		seen, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("redis: parse last_seen: %w", err)
		}
		p.LastSeen = seen
	}
	return p, nil
}

func (r *RedisPresenceStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisPresenceStore) Close() error {
	return r.client.Close()
}
