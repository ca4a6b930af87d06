// Package session owns per-session state: the durable session identity of a
// client and the Redis-backed configuration store keyed by it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dashboard/api/internal/store"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "dashboard:config:"

// putScript writes the hash unless the stored revision is newer.
var putScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'revision')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'revision', ARGV[1], 'document', ARGV[2], 'updated_at', ARGV[3])
return 1
`)

// RedisStore implements configuration storage using Redis hashes
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a new Redis-backed configuration store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultPrefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) GetConfig(ctx context.Context, sessionID string) (store.ConfigRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return store.ConfigRecord{}, fmt.Errorf("get config: %w", err)
	}
	if len(fields) == 0 {
		return store.ConfigRecord{}, store.ErrNotFound
	}

	record := store.ConfigRecord{SessionID: sessionID, Document: []byte(fields["document"])}
	if raw := fields["revision"]; raw != "" {
		record.Revision, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return store.ConfigRecord{}, fmt.Errorf("parse revision: %w", err)
		}
	}
	if raw := fields["updated_at"]; raw != "" {
		record.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return store.ConfigRecord{}, fmt.Errorf("parse updated_at: %w", err)
		}
	}
	return record, nil
}

// PutConfig stores the record atomically unless a newer revision is already
// stored, in which case store.ErrStaleRevision is returned.
func (s *RedisStore) PutConfig(ctx context.Context, record store.ConfigRecord) (store.ConfigRecord, error) {
	record.UpdatedAt = s.now().UTC()
	written, err := putScript.Run(ctx, s.client, []string{s.key(record.SessionID)},
		record.Revision, string(record.Document), record.UpdatedAt.Format(time.RFC3339Nano)).Int()
	if err != nil {
		return store.ConfigRecord{}, fmt.Errorf("put config: %w", err)
	}
	if written == 0 {
		return store.ConfigRecord{}, store.ErrStaleRevision
	}
	return record, nil
}

func (s *RedisStore) DeleteConfig(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
