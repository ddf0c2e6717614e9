package constants

// Redis键命名规范：app:{模块}:{实体}:{标识}
const (
	// MatchResultKeyFmt 匹配结果缓存键：app:match:result:{user_id}:{fingerprint}
	MatchResultKeyFmt = "app:match:result:%s:%s"

	// MatchLockKey 定时匹配循环的全局锁，防止多实例同时跑同一轮
	MatchLockKey = "app:match:tick_lock"
)
