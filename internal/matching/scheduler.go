package matching

import (
	"context"
	"sync"
	"time"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/logger"
)

// TickLocker 调度周期的分布式锁接口，防止多实例同时做全量刷新
type TickLocker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// Scheduler 周期性地为所有持有简历的用户刷新匹配结果。
// 单个用户的失败只记录日志，不影响同批次的其他用户。
type Scheduler struct {
	service  *Service
	locker   TickLocker
	interval time.Duration
	workers  int

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// SchedulerOption 调度器的配置选项
type SchedulerOption func(*Scheduler)

// WithInterval 设置刷新周期
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWorkers 设置并发刷新的工作协程数
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewScheduler 创建匹配刷新调度器。locker 可以为 nil（单实例部署时不需要分布式锁）。
func NewScheduler(service *Service, locker TickLocker, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		service:  service,
		locker:   locker,
		interval: constants.DefaultMatchInterval,
		workers:  constants.DefaultMatchWorkers,
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start 启动调度循环，阻塞直到 Stop 被调用或 ctx 取消
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info().
		Dur("interval", s.interval).
		Int("workers", s.workers).
		Msg("匹配刷新调度器已启动")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop 停止调度并等待在途刷新结束
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// RunOnce 执行一轮全量刷新。持锁失败说明其他实例正在刷新，本轮跳过。
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.locker != nil {
		lockValue, err := s.locker.AcquireLock(ctx, constants.MatchLockKey, s.interval/2)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("获取调度锁失败，跳过本轮刷新")
			return
		}
		if lockValue == "" {
			logger.Ctx(ctx).Debug().Msg("调度锁被其他实例持有，跳过本轮刷新")
			return
		}
		defer func() {
			if _, rErr := s.locker.ReleaseLock(ctx, constants.MatchLockKey, lockValue); rErr != nil {
				logger.Ctx(ctx).Warn().Err(rErr).Msg("释放调度锁失败")
			}
		}()
	}

	profiles, err := s.service.store.ListUsersWithResume(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("读取待刷新用户列表失败")
		return
	}
	if len(profiles) == 0 {
		return
	}

	start := time.Now()
	sem := make(chan struct{}, s.workers)
	var refreshed, failed int
	var mu sync.Mutex

	for _, profile := range profiles {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case sem <- struct{}{}:
		}

		s.wg.Add(1)
		go func(userID string) {
			defer s.wg.Done()
			defer func() { <-sem }()

			// 定时刷新不强制重算：TTL内的缓存结果直接命中，过期的才触发计算
			if _, err := s.service.RequestMatch(ctx, userID, false); err != nil {
				// 单用户失败只记录，不中断整轮刷新
				logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("用户匹配刷新失败")
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(profile.UserID)
	}

	// 等待本轮所有工作协程结束再汇总
	for i := 0; i < s.workers; i++ {
		sem <- struct{}{}
	}

	logger.Ctx(ctx).Info().
		Int("refreshed", refreshed).
		Int("failed", failed).
		Int("total", len(profiles)).
		Dur("elapsed", time.Since(start)).
		Msg("本轮匹配刷新完成")
}
