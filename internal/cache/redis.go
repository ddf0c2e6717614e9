package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/storage"
	"resume-insight-go/internal/types"
)

// RedisStore 基于Redis的匹配结果缓存，TTL由Redis原生过期机制承担
type RedisStore struct {
	redis *storage.Redis
	ttl   time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 创建Redis缓存，ttl<=0 时使用默认值
func NewRedisStore(redis *storage.Redis, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = constants.DefaultMatchCacheTTL
	}
	return &RedisStore{redis: redis, ttl: ttl}
}

// Get 读取并反序列化缓存结果；key不存在时返回未命中，不算错误
func (s *RedisStore) Get(ctx context.Context, userID, fingerprint string) (*types.MatchResult, bool, error) {
	key := storage.MatchResultKey(userID, fingerprint)
	raw, err := s.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis cache: 读取匹配缓存失败: %w", err)
	}

	var result types.MatchResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		// 缓存内容损坏按未命中处理，并顺手删除脏数据
		_ = s.redis.Del(ctx, key)
		return nil, false, nil
	}
	return &result, true, nil
}

// Put 序列化并写入Redis
func (s *RedisStore) Put(ctx context.Context, result *types.MatchResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis cache: 序列化匹配结果失败: %w", err)
	}
	key := storage.MatchResultKey(result.UserID, result.Fingerprint)
	if err := s.redis.Set(ctx, key, string(payload), s.ttl); err != nil {
		return fmt.Errorf("redis cache: 写入匹配缓存失败: %w", err)
	}
	return nil
}

// Invalidate 删除指定条目
func (s *RedisStore) Invalidate(ctx context.Context, userID, fingerprint string) error {
	return s.redis.Del(ctx, storage.MatchResultKey(userID, fingerprint))
}
