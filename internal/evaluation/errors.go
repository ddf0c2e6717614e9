package evaluation

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrEmptyResumeText  = errors.New("简历文本为空")
	ErrExtractionFailed = errors.New("简历文本提取失败")
	ErrAnalysisFailed   = errors.New("简历分析失败")
	ErrPersistFailed    = errors.New("评估结果持久化失败")
	ErrDatabaseFailed   = errors.New("数据库操作失败")
)

// EvaluationError 包含详细错误信息的自定义错误
type EvaluationError struct {
	UserID       string
	EvaluationID string
	Op           string
	BaseErr      error
	Detail       string
}

func (e *EvaluationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 用户:%s, 评估:%s): %s", e.BaseErr, e.Op, e.UserID, e.EvaluationID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 用户:%s, 评估:%s)", e.BaseErr, e.Op, e.UserID, e.EvaluationID)
}

func (e *EvaluationError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *EvaluationError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewEmptyTextError(userID, evaluationID string) error {
	return &EvaluationError{
		UserID:       userID,
		EvaluationID: evaluationID,
		Op:           "validate",
		BaseErr:      ErrEmptyResumeText,
	}
}

func NewExtractionError(userID, evaluationID, detail string) error {
	return &EvaluationError{
		UserID:       userID,
		EvaluationID: evaluationID,
		Op:           "extract",
		BaseErr:      ErrExtractionFailed,
		Detail:       detail,
	}
}

func NewAnalysisError(userID, evaluationID, detail string) error {
	return &EvaluationError{
		UserID:       userID,
		EvaluationID: evaluationID,
		Op:           "analyze",
		BaseErr:      ErrAnalysisFailed,
		Detail:       detail,
	}
}

func NewPersistError(userID, evaluationID, detail string) error {
	return &EvaluationError{
		UserID:       userID,
		EvaluationID: evaluationID,
		Op:           "persist",
		BaseErr:      ErrPersistFailed,
		Detail:       detail,
	}
}

func NewDatabaseError(userID, detail string) error {
	return &EvaluationError{
		UserID:  userID,
		Op:      "database",
		BaseErr: ErrDatabaseFailed,
		Detail:  detail,
	}
}
