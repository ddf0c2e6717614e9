package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/logger"
	"resume-insight-go/internal/types"
)

// Coordinator 双轨分析协调器：内容轨道为必选，视觉轨道可降级。
type Coordinator struct {
	content    ContentScorer
	visual     VisualScorer
	timeout    time.Duration
	mergeLimit int
}

// CoordinatorOption 协调器的配置选项
type CoordinatorOption func(*Coordinator)

// WithAnalysisTimeout 设置单次分析的总超时
func WithAnalysisTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMergeLimit 设置合并后建议条数上限
func WithMergeLimit(limit int) CoordinatorOption {
	return func(c *Coordinator) {
		if limit > 0 {
			c.mergeLimit = limit
		}
	}
}

// NewCoordinator 创建双轨分析协调器。visual 可以为 nil，此时只跑内容轨道。
func NewCoordinator(content ContentScorer, visual VisualScorer, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		content:    content,
		visual:     visual,
		timeout:    constants.DefaultAnalysisTimeout,
		mergeLimit: constants.DefaultMergedRecommendationLimit,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Analyze 对文档并发执行内容与视觉两条分析轨道。
// 视觉轨道失败或无预览图时降级为仅内容结果；内容轨道失败则整次分析失败，
// 此时返回的 outcome 仍携带视觉结果（如有）并标记 PartialVisualOnly。
func (c *Coordinator) Analyze(ctx context.Context, doc *types.Document) (*types.AnalysisOutcome, error) {
	if c.content == nil {
		return nil, fmt.Errorf("coordinator: content scorer is not configured")
	}
	if doc == nil {
		return nil, fmt.Errorf("coordinator: document is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		wg            sync.WaitGroup
		contentResult *types.ContentAnalysis
		contentErr    error
		visualResult  *types.VisualAnalysis
		visualErr     error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		contentResult, contentErr = c.content.Analyze(ctx, doc)
	}()

	runVisual := c.visual != nil && len(doc.PreviewImage) > 0
	if runVisual {
		wg.Add(1)
		go func() {
			defer wg.Done()
			visualResult, visualErr = c.visual.Analyze(ctx, doc)
		}()
	}

	wg.Wait()

	if visualErr != nil {
		// 视觉轨道可降级：记录后继续，仅内容结果
		logger.Ctx(ctx).Warn().Err(visualErr).Str("user_id", doc.UserID).Msg("视觉轨道分析失败，降级为仅内容结果")
		visualResult = nil
	}

	if contentErr != nil {
		outcome := &types.AnalysisOutcome{
			Visual:            visualResult,
			PartialVisualOnly: visualResult != nil,
		}
		return outcome, fmt.Errorf("coordinator: 内容轨道分析失败: %w", contentErr)
	}

	var visualRecs []string
	if visualResult != nil {
		visualRecs = visualResult.Recommendations
	}

	outcome := &types.AnalysisOutcome{
		Content:               contentResult,
		Visual:                visualResult,
		MergedRecommendations: mergeRecommendations(contentResult.Recommendations, visualRecs, c.mergeLimit),
	}
	return outcome, nil
}
