package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"claimguard/pkg/platform/sentinel"
	"claimguard/pkg/requestcontext"
)

const redisKeyPrefix = "claimguard:record:"

// appendScript pushes a version unless the list is write-once and non-empty.
// Returns the new version number or -1 on conflict.
var appendScript = redis.NewScript(`
local n = redis.call('LLEN', KEYS[1])
if ARGV[2] == '1' and n > 0 then
  return -1
end
return redis.call('RPUSH', KEYS[1], ARGV[1])
`)

// redisEnvelope is the stored list element. Version is assigned from the list
// position on read so the script stays a plain append.
type redisEnvelope struct {
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// RedisStore keeps each record's versions in a Redis list.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, e Entity) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	env, err := json.Marshal(redisEnvelope{Body: body, CreatedAt: requestcontext.Now(ctx)})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	writeOnce := "0"
	if e.EntityKind().WriteOnce() {
		writeOnce = "1"
	}
	n, err := appendScript.Run(ctx, s.client, []string{redisKey(e.EntityKind(), e.EntityID())}, env, writeOnce).Int64()
	if err != nil {
		return fmt.Errorf("append %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	if n < 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, kind Kind, id string, dest any) error {
	raw, err := s.client.LIndex(ctx, redisKey(kind, id), -1).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	return decode(kind, id, env.Body, dest)
}

func (s *RedisStore) History(ctx context.Context, kind Kind, id string) ([]Record, error) {
	items, err := s.client.LRange(ctx, redisKey(kind, id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history %s %s: %w", kind, id, err)
	}
	if len(items) == 0 {
		return nil, sentinel.ErrNotFound
	}
	out := make([]Record, 0, len(items))
	for i, item := range items {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(item), &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		out = append(out, Record{Kind: kind, ID: id, Version: i + 1, Body: env.Body, CreatedAt: env.CreatedAt})
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func redisKey(kind Kind, id string) string {
	return redisKeyPrefix + key(kind, id)
}

var _ RecordStore = (*RedisStore)(nil)
