// Package matching 实现简历与岗位的匹配服务：
// 指纹化的结果缓存、LLM排序以及小时级的全量刷新调度。
package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-insight-go/internal/cache"
	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/logger"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"
	"resume-insight-go/pkg/utils"
)

var (
	// ErrProfileNotFound 用户尚未上传过简历
	ErrProfileNotFound = errors.New("用户档案不存在")
	// ErrResumeNotParsed 用户档案存在但没有可用的解析文本
	ErrResumeNotParsed = errors.New("简历文本尚未解析")
)

// MatchStore 匹配服务需要的持久化接口
type MatchStore interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	ListUsersWithResume(ctx context.Context) ([]models.UserProfile, error)
	ListActiveOffers(ctx context.Context) ([]models.JobOffer, error)
	SaveOfferMatch(ctx context.Context, match *models.OfferMatch) error
}

// TextFetcher 解析文本读取接口
type TextFetcher interface {
	GetParsedText(ctx context.Context, objectKey string) (string, error)
}

// Service 岗位匹配服务
type Service struct {
	store      MatchStore
	texts      TextFetcher
	ranker     OfferRanker
	cache      cache.Store
	offerLimit int
}

// ServiceOption 匹配服务的配置选项
type ServiceOption func(*Service)

// WithOfferLimit 设置单次匹配返回的岗位数上限
func WithOfferLimit(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.offerLimit = limit
		}
	}
}

// NewService 创建岗位匹配服务
func NewService(store MatchStore, texts TextFetcher, ranker OfferRanker, resultCache cache.Store, options ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		texts:      texts,
		ranker:     ranker,
		cache:      resultCache,
		offerLimit: constants.DefaultOfferLimit,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// loadDocument 读取用户档案并组装匹配所需的文档
func (s *Service) loadDocument(ctx context.Context, userID string) (*types.Document, error) {
	profile, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("读取用户档案失败: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.ParsedTextPathOSS == "" {
		return nil, ErrResumeNotParsed
	}

	parsedText, err := s.texts.GetParsedText(ctx, profile.ParsedTextPathOSS)
	if err != nil {
		return nil, fmt.Errorf("读取解析文本失败: %w", err)
	}

	var preferences map[string]string
	if len(profile.PreferencesJSON) > 0 {
		if err := json.Unmarshal(profile.PreferencesJSON, &preferences); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("用户偏好JSON解析失败，按无偏好处理")
			preferences = nil
		}
	}

	return &types.Document{
		UserID:      userID,
		ParsedText:  parsedText,
		Preferences: preferences,
	}, nil
}

// RequestMatch 获取用户的岗位匹配结果。
// 指纹命中缓存且未要求强制刷新时直接返回缓存；
// 否则重新计算并写入缓存，计算失败时保留既有缓存不做覆盖。
func (s *Service) RequestMatch(ctx context.Context, userID string, forceRefresh bool) (*types.MatchResult, error) {
	doc, err := s.loadDocument(ctx, userID)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(doc.ParsedText, doc.Preferences)

	if !forceRefresh {
		if cached, hit, cErr := s.cache.Get(ctx, userID, fingerprint); cErr != nil {
			logger.Ctx(ctx).Warn().Err(cErr).Str("user_id", userID).Msg("读取匹配缓存失败，降级为重新计算")
		} else if hit {
			return cached, nil
		}
	}

	result, err := s.compute(ctx, doc, fingerprint)
	if err != nil {
		return nil, err
	}

	if cErr := s.cache.Put(ctx, result); cErr != nil {
		logger.Ctx(ctx).Warn().Err(cErr).Str("user_id", userID).Msg("写入匹配缓存失败")
	}
	return result, nil
}

// compute 执行一次完整的匹配计算并落库
func (s *Service) compute(ctx context.Context, doc *types.Document, fingerprint string) (*types.MatchResult, error) {
	offers, err := s.store.ListActiveOffers(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取在招岗位失败: %w", err)
	}

	var summaries []types.OfferSummary
	if len(offers) == 0 {
		summaries = []types.OfferSummary{}
	} else {
		summaries, err = s.ranker.Rank(ctx, doc, offers, s.offerLimit)
		if err != nil {
			return nil, fmt.Errorf("岗位匹配排序失败: %w", err)
		}
	}

	result := &types.MatchResult{
		UserID:      doc.UserID,
		Fingerprint: fingerprint,
		Offers:      summaries,
		ComputedAt:  time.Now(),
	}

	record := &models.OfferMatch{
		UserID:           doc.UserID,
		Fingerprint:      fingerprint,
		RankedOffersJSON: utils.ConvertStructToJSON(summaries),
		ComputedAt:       result.ComputedAt,
	}
	if err := s.store.SaveOfferMatch(ctx, record); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("user_id", doc.UserID).Msg("匹配结果历史落库失败")
	}

	return result, nil
}

// RefreshUser 为单个用户强制重算匹配结果，供调度器与上传流程使用
func (s *Service) RefreshUser(ctx context.Context, userID string) error {
	_, err := s.RequestMatch(ctx, userID, true)
	return err
}
