package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "livecoach"
	defaultTTL    = 7 * 24 * time.Hour
	scanBatch     = 100
)

// RedisStore keeps each session's history in a Redis list of JSON entries.
// The list's TTL is refreshed on every append.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets how long a session's history lives after its last turn.
// Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "livecoach".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: defaultTTL, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:history:%s", s.prefix, sessionID)
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, e Entry) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Turns implements Store.
func (s *RedisStore) Turns(ctx context.Context, sessionID string) ([]Entry, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Sessions implements Store.
func (s *RedisStore) Sessions(ctx context.Context) ([]string, error) {
	pattern := s.key("*")
	trim := len(s.key(""))

	var ids []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[trim:])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	n, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
