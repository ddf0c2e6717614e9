package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"resume-insight-go/internal/cache"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// 测试用匹配存储模拟器
type mockMatchStore struct {
	mu       sync.Mutex
	profiles map[string]*models.UserProfile
	offers   []models.JobOffer
	saved    []*models.OfferMatch

	listOffersErr error
}

func newMockMatchStore() *mockMatchStore {
	return &mockMatchStore{profiles: make(map[string]*models.UserProfile)}
}

func (s *mockMatchStore) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID], nil
}

func (s *mockMatchStore) ListUsersWithResume(ctx context.Context) ([]models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.ParsedTextPathOSS != "" {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *mockMatchStore) ListActiveOffers(ctx context.Context) ([]models.JobOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listOffersErr != nil {
		return nil, s.listOffersErr
	}
	return s.offers, nil
}

func (s *mockMatchStore) SaveOfferMatch(ctx context.Context, match *models.OfferMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, match)
	return nil
}

// 测试用解析文本读取模拟器
type mockTextFetcher struct {
	texts map[string]string
}

func (f *mockTextFetcher) GetParsedText(ctx context.Context, objectKey string) (string, error) {
	text, ok := f.texts[objectKey]
	if !ok {
		return "", errors.New("object not found")
	}
	return text, nil
}

// 测试用排序器模拟器
type mockRanker struct {
	mu      sync.Mutex
	results []types.OfferSummary
	err     error
	calls   int
}

func (r *mockRanker) Rank(ctx context.Context, doc *types.Document, offers []models.JobOffer, limit int) ([]types.OfferSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.results, nil
}

func (r *mockRanker) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestService(t *testing.T) (*Service, *mockMatchStore, *mockRanker, *cache.MemoryStore) {
	t.Helper()
	store := newMockMatchStore()
	store.profiles["user-1"] = &models.UserProfile{
		UserID:            "user-1",
		ParsedTextPathOSS: "resume/user-1/parsed_text.txt",
		PreferencesJSON:   datatypes.JSON(`{"city":"杭州"}`),
	}
	store.offers = []models.JobOffer{
		{OfferID: "offer-1", Title: "后端工程师", Company: "公司A", Status: "ACTIVE"},
	}
	texts := &mockTextFetcher{texts: map[string]string{
		"resume/user-1/parsed_text.txt": "五年Go后端开发经验",
	}}
	ranker := &mockRanker{results: []types.OfferSummary{
		{OfferID: "offer-1", Title: "后端工程师", Company: "公司A", MatchScore: 90},
	}}
	memCache := cache.NewMemoryStore(time.Hour)
	svc := NewService(store, texts, ranker, memCache)
	return svc, store, ranker, memCache
}

// TestRequestMatchComputeAndCache 首次请求计算并写入缓存
func TestRequestMatchComputeAndCache(t *testing.T) {
	svc, store, ranker, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.RequestMatch(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, result.Offers, 1)
	assert.Equal(t, "user-1", result.UserID)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Equal(t, 1, ranker.callCount())
	assert.Len(t, store.saved, 1, "匹配快照应落库")

	// 第二次请求命中缓存，不再计算
	result2, err := svc.RequestMatch(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, result.Fingerprint, result2.Fingerprint)
	assert.Equal(t, 1, ranker.callCount(), "缓存命中时不应重新计算")
}

// TestRequestMatchForceRefresh 强制刷新跳过缓存
func TestRequestMatchForceRefresh(t *testing.T) {
	svc, _, ranker, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RequestMatch(ctx, "user-1", false)
	require.NoError(t, err)
	_, err = svc.RequestMatch(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, ranker.callCount())
}

// TestRequestMatchFingerprintInvalidation 简历文本变化后缓存自然失效
func TestRequestMatchFingerprintInvalidation(t *testing.T) {
	svc, _, ranker, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.RequestMatch(ctx, "user-1", false)
	require.NoError(t, err)

	// 模拟重新上传：解析文本变化
	texts := svc.texts.(*mockTextFetcher)
	texts.texts["resume/user-1/parsed_text.txt"] = "八年Go后端与架构经验"

	second, err := svc.RequestMatch(ctx, "user-1", false)
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 2, ranker.callCount(), "指纹变化应触发重新计算")
}

// TestRequestMatchFailurePreservesCache 计算失败不覆盖既有缓存
func TestRequestMatchFailurePreservesCache(t *testing.T) {
	svc, _, ranker, memCache := newTestService(t)
	ctx := context.Background()

	first, err := svc.RequestMatch(ctx, "user-1", false)
	require.NoError(t, err)

	// 让后续计算失败并强制刷新
	ranker.mu.Lock()
	ranker.err = errors.New("LLM unavailable")
	ranker.mu.Unlock()

	_, err = svc.RequestMatch(ctx, "user-1", true)
	require.Error(t, err)

	// 旧缓存仍在
	cached, hit, cErr := memCache.Get(ctx, "user-1", first.Fingerprint)
	require.NoError(t, cErr)
	require.True(t, hit, "失败的重算不应清掉既有缓存")
	assert.Equal(t, first.Offers, cached.Offers)
}

// TestRequestMatchProfileNotFound 无档案用户返回特定错误
func TestRequestMatchProfileNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.RequestMatch(context.Background(), "ghost", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

// TestRequestMatchResumeNotParsed 档案存在但无解析文本
func TestRequestMatchResumeNotParsed(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.profiles["user-2"] = &models.UserProfile{UserID: "user-2"}

	_, err := svc.RequestMatch(context.Background(), "user-2", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResumeNotParsed))
}

// TestRequestMatchNoActiveOffers 没有在招岗位时返回空列表，不算失败
func TestRequestMatchNoActiveOffers(t *testing.T) {
	svc, store, ranker, _ := newTestService(t)
	store.mu.Lock()
	store.offers = nil
	store.mu.Unlock()

	result, err := svc.RequestMatch(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, result.Offers)
	assert.Equal(t, 0, ranker.callCount())
}
