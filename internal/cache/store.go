// Package cache 提供匹配结果缓存的统一抽象，支持内存与Redis两种实现。
package cache

import (
	"context"

	"resume-insight-go/internal/types"
)

// Store 匹配结果缓存接口。键由 userID 与简历指纹共同决定，
// 指纹变化等同于缓存失效。
type Store interface {
	// Get 读取缓存的匹配结果，未命中时返回 (nil, false, nil)
	Get(ctx context.Context, userID, fingerprint string) (*types.MatchResult, bool, error)
	// Put 写入匹配结果并设置过期
	Put(ctx context.Context, result *types.MatchResult) error
	// Invalidate 主动删除某用户某指纹的缓存
	Invalidate(ctx context.Context, userID, fingerprint string) error
}
