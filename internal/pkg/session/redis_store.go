// internal/pkg/session/redis_store.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"astrobot-service/internal/domain/conversation"
	xerrors "astrobot-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares flow sessions between instances. Keys expire with the session.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get loads a session or returns xerrors.ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, userID string, kind conversation.FlowKind) (*conversation.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session from redis: %w", err)
	}

	var sess conversation.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Save stores the session with the remaining TTL.
func (s *RedisStore) Save(ctx context.Context, sess *conversation.Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = now.Add(s.ttl)
	}
	sess.UpdatedAt = now

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return xerrors.ErrSessionExpired
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.UserID, sess.Kind), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string, kind conversation.FlowKind) error {
	if err := s.client.Del(ctx, sessionKey(userID, kind)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAll removes every flow slot of the user.
func (s *RedisStore) DeleteAll(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(conversation.Precedence))
	for _, kind := range conversation.Precedence {
		keys = append(keys, sessionKey(userID, kind))
	}
	// keys of different slots may live on different cluster nodes
	for _, key := range keys {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", key, err)
		}
	}
	return nil
}

func sessionKey(userID string, kind conversation.FlowKind) string {
	return fmt.Sprintf("session:%s:%s", kind, userID)
}
