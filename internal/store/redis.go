package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceTTL = 60 * time.Second

	// Fixed-window per-sender message throttle.
	messageLimit  = 30
	messageWindow = time.Minute
)

// RedisStore handles Redis operations: cross-instance frame fan-out via
// pub/sub and short-lived presence keys. It is optional; a single-instance
// deployment runs without it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// projectChannel returns the pub/sub channel for a project's frames.
func projectChannel(projectID string) string {
	return fmt.Sprintf("chat:project:%s", projectID)
}

// presenceKey returns the key marking a user online in a project channel.
func presenceKey(projectID, userID string) string {
	return fmt.Sprintf("chat:online:%s:%s", projectID, userID)
}

// PublishFrame fans an encoded frame out to every service instance that has
// subscribers for the project.
func (s *RedisStore) PublishFrame(ctx context.Context, projectID string, frame []byte) error {
	return s.client.Publish(ctx, projectChannel(projectID), frame).Err()
}

// SubscribeFrames subscribes to frames for all projects. The caller owns the
// returned PubSub and must close it.
func (s *RedisStore) SubscribeFrames(ctx context.Context) *redis.PubSub {
	return s.client.PSubscribe(ctx, projectChannel("*"))
}

// AllowMessage checks and increments the sender's message allowance.
// Fail-open: if Redis is unreachable the message goes through.
func (s *RedisStore) AllowMessage(ctx context.Context, userID string) bool {
	key := fmt.Sprintf("chat:msglimit:%s:%d", userID, time.Now().Unix()/int64(messageWindow.Seconds()))
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		s.client.Expire(ctx, key, messageWindow*2)
	}
	return count <= messageLimit
}

// TouchPresence marks a user online in a project channel. Called on connect
// and refreshed by keepalive traffic; the key expires on its own.
func (s *RedisStore) TouchPresence(ctx context.Context, projectID, userID string) error {
	return s.client.Set(ctx, presenceKey(projectID, userID), time.Now().UnixMilli(), presenceTTL).Err()
}

// ClearPresence removes a user's online marker on disconnect.
func (s *RedisStore) ClearPresence(ctx context.Context, projectID, userID string) error {
	return s.client.Del(ctx, presenceKey(projectID, userID)).Err()
}

// OnlineUsers returns the IDs of users currently online in a project channel.
func (s *RedisStore) OnlineUsers(ctx context.Context, projectID string) ([]string, error) {
	prefix := fmt.Sprintf("chat:online:%s:", projectID)
	var (
		cursor uint64
		users  []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			users = append(users, key[len(prefix):])
		}
		if next == 0 {
			return users, nil
		}
		cursor = next
	}
}
