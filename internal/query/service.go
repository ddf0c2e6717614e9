// Package query 提供评估结果的只读查询服务，不触发任何状态变更。
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"
)

var (
	// ErrEvaluationNotFound 查询对象不存在
	ErrEvaluationNotFound = errors.New("评估记录不存在")
	// ErrMalformedRecord 已完成的记录缺失或无法解析结果JSON
	ErrMalformedRecord = errors.New("评估记录数据损坏")
)

// EvaluationReader 查询服务需要的只读数据接口
type EvaluationReader interface {
	GetEvaluationByID(ctx context.Context, evaluationID string) (*models.Evaluation, error)
	LatestEvaluationByUser(ctx context.Context, userID string) (*models.Evaluation, error)
	ListEvaluationsByUser(ctx context.Context, userID string, limit int) ([]models.Evaluation, error)
}

// StatusView 轻量的状态视图，供轮询接口使用
type StatusView struct {
	EvaluationID string     `json:"evaluation_id"`
	UserID       string     `json:"user_id"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ReportView 完整的评估报告视图
type ReportView struct {
	StatusView
	OverallScore          *int                   `json:"overall_score,omitempty"`
	Dimensions            []types.DimensionScore `json:"dimensions,omitempty"`
	Content               *types.ContentAnalysis `json:"content,omitempty"`
	Visual                *types.VisualAnalysis  `json:"visual,omitempty"`
	MergedRecommendations []string               `json:"merged_recommendations,omitempty"`
}

// Service 评估查询服务
type Service struct {
	reader EvaluationReader
}

// NewService 创建查询服务
func NewService(reader EvaluationReader) *Service {
	return &Service{reader: reader}
}

func toStatusView(eval *models.Evaluation) StatusView {
	return StatusView{
		EvaluationID: eval.EvaluationID,
		UserID:       eval.UserID,
		Status:       eval.Status,
		CreatedAt:    eval.CreatedAt,
		CompletedAt:  eval.CompletedAt,
		ErrorMessage: eval.ErrorMessage,
	}
}

// LatestStatus 返回用户最近一次评估的状态，从未评估过时返回 ErrEvaluationNotFound
func (s *Service) LatestStatus(ctx context.Context, userID string) (*StatusView, error) {
	eval, err := s.reader.LatestEvaluationByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询最近评估失败: %w", err)
	}
	if eval == nil {
		return nil, ErrEvaluationNotFound
	}
	view := toStatusView(eval)
	return &view, nil
}

// Report 返回指定评估的完整报告。
// PENDING/FAILED 记录只携带状态信息；COMPLETED 记录必须能解析出结果JSON，
// 否则返回 ErrMalformedRecord。
func (s *Service) Report(ctx context.Context, evaluationID string) (*ReportView, error) {
	eval, err := s.reader.GetEvaluationByID(ctx, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("查询评估记录失败: %w", err)
	}
	if eval == nil {
		return nil, ErrEvaluationNotFound
	}
	return buildReport(eval)
}

// LatestReport 返回用户最近一次评估的完整报告
func (s *Service) LatestReport(ctx context.Context, userID string) (*ReportView, error) {
	eval, err := s.reader.LatestEvaluationByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询最近评估失败: %w", err)
	}
	if eval == nil {
		return nil, ErrEvaluationNotFound
	}
	return buildReport(eval)
}

// History 返回用户的评估历史状态列表，按创建时间倒序
func (s *Service) History(ctx context.Context, userID string, limit int) ([]StatusView, error) {
	evals, err := s.reader.ListEvaluationsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询评估历史失败: %w", err)
	}
	views := make([]StatusView, 0, len(evals))
	for i := range evals {
		views = append(views, toStatusView(&evals[i]))
	}
	return views, nil
}

func buildReport(eval *models.Evaluation) (*ReportView, error) {
	report := &ReportView{
		StatusView:   toStatusView(eval),
		OverallScore: eval.OverallScore,
	}

	if eval.Status != constants.EvaluationStatusCompleted {
		return report, nil
	}

	// 完成态的核心结果字段是强约束，解析失败说明数据损坏
	if len(eval.ContentFeedbackJSON) == 0 {
		return nil, fmt.Errorf("%w: 缺少内容分析结果 (评估:%s)", ErrMalformedRecord, eval.EvaluationID)
	}
	var content types.ContentAnalysis
	if err := json.Unmarshal(eval.ContentFeedbackJSON, &content); err != nil {
		return nil, fmt.Errorf("%w: 内容分析结果JSON无法解析 (评估:%s): %v", ErrMalformedRecord, eval.EvaluationID, err)
	}
	report.Content = &content

	if len(eval.DimensionScoresJSON) > 0 {
		if err := json.Unmarshal(eval.DimensionScoresJSON, &report.Dimensions); err != nil {
			return nil, fmt.Errorf("%w: 维度评分JSON无法解析 (评估:%s): %v", ErrMalformedRecord, eval.EvaluationID, err)
		}
	}

	// 视觉结果可缺省，存在但损坏时也视为记录损坏
	if len(eval.VisualFeedbackJSON) > 0 {
		var visual types.VisualAnalysis
		if err := json.Unmarshal(eval.VisualFeedbackJSON, &visual); err != nil {
			return nil, fmt.Errorf("%w: 视觉分析结果JSON无法解析 (评估:%s): %v", ErrMalformedRecord, eval.EvaluationID, err)
		}
		report.Visual = &visual
	}

	if len(eval.MergedRecommendationsJSON) > 0 {
		if err := json.Unmarshal(eval.MergedRecommendationsJSON, &report.MergedRecommendations); err != nil {
			return nil, fmt.Errorf("%w: 合并建议JSON无法解析 (评估:%s): %v", ErrMalformedRecord, eval.EvaluationID, err)
		}
	}

	return report, nil
}
