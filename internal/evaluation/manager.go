// Package evaluation 实现评估任务的状态机管理：
// 每个用户同一时刻至多一个 PENDING 任务，终态（COMPLETED/FAILED）不可回退。
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/logger"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"
	"resume-insight-go/pkg/utils"
)

// EvaluationStore 评估记录的持久化接口
type EvaluationStore interface {
	CreatePendingIfAbsent(ctx context.Context, userID string) (*models.Evaluation, bool, error)
	MarkEvaluationCompleted(ctx context.Context, evaluationID string, updates map[string]interface{}) error
	MarkEvaluationFailed(ctx context.Context, evaluationID, errorMessage string) error
}

// Analyzer 双轨分析入口
type Analyzer interface {
	Analyze(ctx context.Context, doc *types.Document) (*types.AnalysisOutcome, error)
}

// Manager 评估任务管理器
type Manager struct {
	store    EvaluationStore
	analyzer Analyzer
	timeout  time.Duration
	wg       sync.WaitGroup
}

// ManagerOption 管理器的配置选项
type ManagerOption func(*Manager)

// WithEvaluationTimeout 设置单次评估的总超时
func WithEvaluationTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager 创建评估任务管理器
func NewManager(store EvaluationStore, analyzer Analyzer, options ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		analyzer: analyzer,
		timeout:  constants.DefaultAnalysisTimeout,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// RequestEvaluation 为用户发起一次评估。
// 若该用户已有 PENDING 任务，直接返回现有任务且 started=false（幂等去重）；
// 否则创建新任务并异步执行分析，返回新任务且 started=true。
func (m *Manager) RequestEvaluation(ctx context.Context, doc *types.Document) (eval *models.Evaluation, started bool, err error) {
	if doc == nil || doc.UserID == "" {
		return nil, false, NewDatabaseError("", "document or user_id is missing")
	}

	eval, created, err := m.store.CreatePendingIfAbsent(ctx, doc.UserID)
	if err != nil {
		return nil, false, NewDatabaseError(doc.UserID, err.Error())
	}
	if !created {
		logger.Ctx(ctx).Info().
			Str("user_id", doc.UserID).
			Str("evaluation_id", eval.EvaluationID).
			Msg("用户已有进行中的评估任务，复用现有任务")
		return eval, false, nil
	}

	// 空文本不进入分析轨道，直接置为失败终态
	if strings.TrimSpace(doc.ParsedText) == "" {
		failErr := NewEmptyTextError(doc.UserID, eval.EvaluationID)
		if mErr := m.store.MarkEvaluationFailed(ctx, eval.EvaluationID, failErr.Error()); mErr != nil {
			logger.Ctx(ctx).Error().Err(mErr).
				Str("evaluation_id", eval.EvaluationID).
				Msg("空文本任务置为失败时出错")
		}
		eval.Status = constants.EvaluationStatusFailed
		return eval, true, failErr
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// 与请求生命周期解耦，分析在后台完成
		runCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.run(runCtx, eval.EvaluationID, doc)
	}()

	return eval, true, nil
}

// RecordExtractionFailure 在文本提取阶段失败时直接登记一条FAILED评估，
// 让用户侧的状态查询能看到失败原因，分析轨道不会启动。
func (m *Manager) RecordExtractionFailure(ctx context.Context, userID, detail string) (*models.Evaluation, error) {
	if userID == "" {
		return nil, NewDatabaseError("", "user_id is missing")
	}

	eval, created, err := m.store.CreatePendingIfAbsent(ctx, userID)
	if err != nil {
		return nil, NewDatabaseError(userID, err.Error())
	}
	// 已存在的 PENDING 属于另一条在途的分析，不能被这次提取失败误杀
	if !created {
		logger.Ctx(ctx).Warn().
			Str("user_id", userID).
			Str("evaluation_id", eval.EvaluationID).
			Msg("用户已有进行中的评估任务，提取失败不覆盖该任务")
		return eval, nil
	}

	failErr := NewExtractionError(userID, eval.EvaluationID, detail)
	if mErr := m.store.MarkEvaluationFailed(ctx, eval.EvaluationID, failErr.Error()); mErr != nil {
		logger.Ctx(ctx).Error().Err(mErr).
			Str("evaluation_id", eval.EvaluationID).
			Msg("提取失败任务置为失败时出错")
		return eval, NewDatabaseError(userID, mErr.Error())
	}
	eval.Status = constants.EvaluationStatusFailed
	return eval, nil
}

// run 执行双轨分析并把结果落库，任何失败路径都把任务推进到 FAILED 终态
func (m *Manager) run(ctx context.Context, evaluationID string, doc *types.Document) {
	outcome, err := m.analyzer.Analyze(ctx, doc)
	if err != nil {
		detail := err.Error()
		// 超时与普通分析失败区分开，方便排查是模型慢还是结果坏
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("分析超时（超过%s未完成）: %v", m.timeout, err)
		}
		analysisErr := NewAnalysisError(doc.UserID, evaluationID, detail)
		logger.Ctx(ctx).Error().Err(err).
			Str("user_id", doc.UserID).
			Str("evaluation_id", evaluationID).
			Bool("partial_visual_only", outcome != nil && outcome.PartialVisualOnly).
			Msg("内容轨道分析失败，评估任务置为失败")
		if mErr := m.store.MarkEvaluationFailed(ctx, evaluationID, analysisErr.Error()); mErr != nil {
			logger.Ctx(ctx).Error().Err(mErr).Str("evaluation_id", evaluationID).Msg("更新评估任务为失败状态时出错")
		}
		return
	}

	if err := m.store.MarkEvaluationCompleted(ctx, evaluationID, buildCompletionUpdates(outcome)); err != nil {
		persistErr := NewPersistError(doc.UserID, evaluationID, err.Error())
		logger.Ctx(ctx).Error().Err(persistErr).
			Str("evaluation_id", evaluationID).
			Msg("评估结果落库失败")
		return
	}

	logger.Ctx(ctx).Info().
		Str("user_id", doc.UserID).
		Str("evaluation_id", evaluationID).
		Int("overall_score", outcome.Content.OverallScore).
		Bool("has_visual", outcome.Visual != nil).
		Msg("评估任务完成")
}

// buildCompletionUpdates 把分析结果转换为落库字段
func buildCompletionUpdates(outcome *types.AnalysisOutcome) map[string]interface{} {
	updates := map[string]interface{}{
		"overall_score":               utils.IntPtr(outcome.Content.OverallScore),
		"dimension_scores_json":       utils.ConvertStructToJSON(outcome.Content.Dimensions),
		"content_feedback_json":       utils.ConvertStructToJSON(outcome.Content),
		"merged_recommendations_json": utils.ConvertArrayToJSON(outcome.MergedRecommendations),
	}

	if outcome.Visual != nil {
		updates["visual_feedback_json"] = utils.ConvertStructToJSON(outcome.Visual)
	}

	return updates
}

// Wait 等待所有在途评估任务结束，供优雅关停使用
func (m *Manager) Wait() {
	m.wg.Wait()
}
