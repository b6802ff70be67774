package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/obslog"
)

const defaultRedisRetries = 32

// RedisStore keeps each slot as JSON under <prefix>slot:<conversation> and
// serializes updates with WATCH/MULTI, retrying when another writer wins the race.
type RedisStore struct {
	rdb        *redis.Client
	prefix     string
	maxRetries int
}

// NewRedisStore connects to redisURL (redis:// or rediss://) and pings it.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(rdb, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, maxRetries: defaultRedisRetries}
}

func (s *RedisStore) key(conv domain.ConversationID) string {
	return s.prefix + "slot:" + strings.TrimSpace(string(conv))
}

func (s *RedisStore) Load(ctx context.Context, conv domain.ConversationID) (domain.Slot, error) {
	return decodeSlot(s.rdb.Get(ctx, s.key(conv)).Bytes())
}

func (s *RedisStore) Update(ctx context.Context, conv domain.ConversationID, fn UpdateFunc) (domain.Slot, error) {
	key := s.key(conv)
	var result domain.Slot
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := decodeSlot(tx.Get(ctx, key).Bytes())
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				result = cur
				return err
			}
			pipe := tx.TxPipeline()
			if next.Empty() {
				pipe.Del(ctx, key)
			} else {
				raw, err := json.Marshal(next)
				if err != nil {
					return fmt.Errorf("encode slot: %w", err)
				}
				pipe.Set(ctx, key, raw, 0)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			result = next
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			obslog.L().Debug("registry_redis_retry", zap.String("conversation", string(conv)), zap.Int("attempt", attempt))
			continue
		}
		return result, err
	}
	return domain.Slot{}, ErrContention
}

func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"slot:*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan slots: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func decodeSlot(raw []byte, err error) (domain.Slot, error) {
	if errors.Is(err, redis.Nil) {
		return domain.Slot{}, nil
	}
	if err != nil {
		return domain.Slot{}, err
	}
	var s domain.Slot
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Slot{}, fmt.Errorf("decode slot: %w", err)
	}
	return s, nil
}
