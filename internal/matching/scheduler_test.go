package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"resume-insight-go/internal/cache"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用调度锁模拟器
type mockTickLocker struct {
	mu       sync.Mutex
	value    string
	err      error
	acquires int
	releases int
}

func (l *mockTickLocker) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.err != nil {
		return "", l.err
	}
	return l.value, nil
}

func (l *mockTickLocker) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return true, nil
}

func newSchedulerFixture(t *testing.T) (*Scheduler, *mockRanker, *cache.MemoryStore) {
	t.Helper()
	store := newMockMatchStore()
	texts := &mockTextFetcher{texts: map[string]string{}}
	for _, uid := range []string{"user-1", "user-2", "user-3"} {
		key := "resume/" + uid + "/parsed_text.txt"
		store.profiles[uid] = &models.UserProfile{UserID: uid, ParsedTextPathOSS: key}
		texts.texts[key] = "候选人 " + uid + " 的简历文本"
	}
	store.offers = []models.JobOffer{
		{OfferID: "offer-1", Title: "后端工程师", Company: "公司A", Status: "ACTIVE"},
	}
	ranker := &mockRanker{results: []types.OfferSummary{
		{OfferID: "offer-1", Title: "后端工程师", Company: "公司A", MatchScore: 80},
	}}
	memCache := cache.NewMemoryStore(time.Hour)
	svc := NewService(store, texts, ranker, memCache)
	scheduler := NewScheduler(svc, nil, WithWorkers(2))
	return scheduler, ranker, memCache
}

// TestRunOnceRefreshesAllUsers 一轮调度覆盖所有持有简历的用户
func TestRunOnceRefreshesAllUsers(t *testing.T) {
	scheduler, ranker, memCache := newSchedulerFixture(t)
	ctx := context.Background()

	scheduler.RunOnce(ctx)
	scheduler.Stop()

	assert.Equal(t, 3, ranker.callCount())
	for _, uid := range []string{"user-1", "user-2", "user-3"} {
		fp := Fingerprint("候选人 "+uid+" 的简历文本", nil)
		_, hit, err := memCache.Get(ctx, uid, fp)
		require.NoError(t, err)
		assert.True(t, hit, "用户 %s 的匹配结果应已写入缓存", uid)
	}
}

// TestRunOnceIsolatesFailingUser 单用户失败不影响同批次其他用户
func TestRunOnceIsolatesFailingUser(t *testing.T) {
	scheduler, ranker, memCache := newSchedulerFixture(t)
	ctx := context.Background()

	// user-2 的解析文本缺失，刷新必然失败
	texts := scheduler.service.texts.(*mockTextFetcher)
	delete(texts.texts, "resume/user-2/parsed_text.txt")

	scheduler.RunOnce(ctx)
	scheduler.Stop()

	assert.Equal(t, 2, ranker.callCount())
	fp1 := Fingerprint("候选人 user-1 的简历文本", nil)
	_, hit, err := memCache.Get(ctx, "user-1", fp1)
	require.NoError(t, err)
	assert.True(t, hit)
	fp3 := Fingerprint("候选人 user-3 的简历文本", nil)
	_, hit, err = memCache.Get(ctx, "user-3", fp3)
	require.NoError(t, err)
	assert.True(t, hit)
}

// TestRunOnceHonorsFreshCache TTL内的缓存结果直接命中，不重复计算
func TestRunOnceHonorsFreshCache(t *testing.T) {
	scheduler, ranker, _ := newSchedulerFixture(t)
	ctx := context.Background()

	// 先为 user-1 算出一份仍在TTL内的结果
	_, err := scheduler.service.RequestMatch(ctx, "user-1", false)
	require.NoError(t, err)
	require.Equal(t, 1, ranker.callCount())

	scheduler.RunOnce(ctx)
	scheduler.Stop()

	// 本轮只为没有缓存的 user-2 / user-3 计算
	assert.Equal(t, 3, ranker.callCount(), "缓存未过期的用户不应重新计算")
}

// TestRunOnceSkipsWhenLockHeld 调度锁被其他实例持有时本轮跳过
func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	scheduler, ranker, _ := newSchedulerFixture(t)
	locker := &mockTickLocker{value: ""}
	scheduler.locker = locker

	scheduler.RunOnce(context.Background())
	scheduler.Stop()

	assert.Equal(t, 1, locker.acquires)
	assert.Equal(t, 0, locker.releases, "未持锁不应执行释放")
	assert.Equal(t, 0, ranker.callCount())
}

// TestRunOnceReleasesLock 持锁成功后本轮结束时释放
func TestRunOnceReleasesLock(t *testing.T) {
	scheduler, ranker, _ := newSchedulerFixture(t)
	locker := &mockTickLocker{value: "lock-token"}
	scheduler.locker = locker

	scheduler.RunOnce(context.Background())
	scheduler.Stop()

	assert.Equal(t, 1, locker.acquires)
	assert.Equal(t, 1, locker.releases)
	assert.Equal(t, 3, ranker.callCount())
}
