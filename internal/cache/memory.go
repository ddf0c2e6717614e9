package cache

import (
	"context"
	"sync"
	"time"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/types"
)

type memoryEntry struct {
	result    *types.MatchResult
	expiresAt time.Time
}

// MemoryStore 进程内的匹配结果缓存。过期条目在读取时惰性剔除，
// 适用于单实例部署与测试。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存缓存，ttl<=0 时使用默认值
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = constants.DefaultMatchCacheTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func memoryKey(userID, fingerprint string) string {
	return userID + ":" + fingerprint
}

// Get 读取缓存，过期视为未命中并删除条目
func (s *MemoryStore) Get(_ context.Context, userID, fingerprint string) (*types.MatchResult, bool, error) {
	key := memoryKey(userID, fingerprint)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		// 重新检查，避免删掉并发写入的新条目
		if cur, still := s.entries[key]; still && s.now().After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	return entry.result, true, nil
}

// Put 写入缓存并重置过期时间
func (s *MemoryStore) Put(_ context.Context, result *types.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[memoryKey(result.UserID, result.Fingerprint)] = memoryEntry{
		result:    result,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// Invalidate 删除指定条目
func (s *MemoryStore) Invalidate(_ context.Context, userID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, memoryKey(userID, fingerprint))
	return nil
}
