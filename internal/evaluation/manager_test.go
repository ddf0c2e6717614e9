package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用评估存储模拟器：在内存里复刻"每用户至多一条PENDING"的语义
type mockEvaluationStore struct {
	mu            sync.Mutex
	evaluations   map[string]*models.Evaluation // evaluationID -> record
	pendingByUser map[string]string             // userID -> pending evaluationID
	nextID        int

	createErr error
	failCalls []string
}

func newMockEvaluationStore() *mockEvaluationStore {
	return &mockEvaluationStore{
		evaluations:   make(map[string]*models.Evaluation),
		pendingByUser: make(map[string]string),
	}
}

func (s *mockEvaluationStore) CreatePendingIfAbsent(ctx context.Context, userID string) (*models.Evaluation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	if id, ok := s.pendingByUser[userID]; ok {
		return s.evaluations[id], false, nil
	}
	s.nextID++
	eval := &models.Evaluation{
		EvaluationID: fmt.Sprintf("eval-%d", s.nextID),
		UserID:       userID,
		Status:       constants.EvaluationStatusPending,
		CreatedAt:    time.Now(),
	}
	s.evaluations[eval.EvaluationID] = eval
	s.pendingByUser[userID] = eval.EvaluationID
	return eval, true, nil
}

func (s *mockEvaluationStore) MarkEvaluationCompleted(ctx context.Context, evaluationID string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eval, ok := s.evaluations[evaluationID]
	if !ok || eval.Status != constants.EvaluationStatusPending {
		return errors.New("评估记录不存在或已终结")
	}
	eval.Status = constants.EvaluationStatusCompleted
	if score, ok := updates["overall_score"].(*int); ok {
		eval.OverallScore = score
	}
	delete(s.pendingByUser, eval.UserID)
	return nil
}

func (s *mockEvaluationStore) MarkEvaluationFailed(ctx context.Context, evaluationID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eval, ok := s.evaluations[evaluationID]
	if !ok || eval.Status != constants.EvaluationStatusPending {
		return errors.New("评估记录不存在或已终结")
	}
	eval.Status = constants.EvaluationStatusFailed
	eval.ErrorMessage = errorMessage
	delete(s.pendingByUser, eval.UserID)
	s.failCalls = append(s.failCalls, evaluationID)
	return nil
}

func (s *mockEvaluationStore) statusOf(evaluationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eval, ok := s.evaluations[evaluationID]; ok {
		return eval.Status
	}
	return ""
}

// 测试用分析器模拟器。block不为nil时Analyze会阻塞到通道关闭，
// waitCtx为true时则等到上下文取消并返回取消原因。
type mockAnalyzer struct {
	outcome *types.AnalysisOutcome
	err     error
	block   chan struct{}
	waitCtx bool
	mu      sync.Mutex
	calls   int
}

func (m *mockAnalyzer) Analyze(ctx context.Context, doc *types.Document) (*types.AnalysisOutcome, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.waitCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.block != nil {
		<-m.block
	}
	return m.outcome, m.err
}

func (m *mockAnalyzer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func successOutcome() *types.AnalysisOutcome {
	return &types.AnalysisOutcome{
		Content: &types.ContentAnalysis{
			OverallScore:    74,
			Recommendations: []string{"补充量化数据"},
		},
		MergedRecommendations: []string{"补充量化数据"},
	}
}

func docForUser(userID string) *types.Document {
	return &types.Document{UserID: userID, ParsedText: "一份不为空的简历文本"}
}

// TestManagerSuccessFlow 成功路径：创建PENDING并异步完成
func TestManagerSuccessFlow(t *testing.T) {
	store := newMockEvaluationStore()
	analyzer := &mockAnalyzer{outcome: successOutcome()}
	m := NewManager(store, analyzer)

	eval, started, err := m.RequestEvaluation(context.Background(), docForUser("user-1"))
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, constants.EvaluationStatusPending, eval.Status)

	m.Wait()
	assert.Equal(t, constants.EvaluationStatusCompleted, store.statusOf(eval.EvaluationID))
	assert.Equal(t, 1, analyzer.callCount())
}

// TestManagerDeduplicatesPending 已有PENDING任务时复用，不重复分析
func TestManagerDeduplicatesPending(t *testing.T) {
	store := newMockEvaluationStore()
	// 预置一条PENDING记录
	first, created, err := store.CreatePendingIfAbsent(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, created)

	analyzer := &mockAnalyzer{outcome: successOutcome()}
	m := NewManager(store, analyzer)

	eval, started, err := m.RequestEvaluation(context.Background(), docForUser("user-1"))
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, first.EvaluationID, eval.EvaluationID)

	m.Wait()
	assert.Equal(t, 0, analyzer.callCount(), "复用现有任务时不应触发分析")
}

// TestManagerEmptyTextFailsImmediately 空文本直接置为FAILED，不进入分析轨道
func TestManagerEmptyTextFailsImmediately(t *testing.T) {
	store := newMockEvaluationStore()
	analyzer := &mockAnalyzer{outcome: successOutcome()}
	m := NewManager(store, analyzer)

	eval, started, err := m.RequestEvaluation(context.Background(), &types.Document{UserID: "user-1", ParsedText: "  \n "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyResumeText))
	assert.True(t, started)
	assert.Equal(t, constants.EvaluationStatusFailed, eval.Status)

	m.Wait()
	assert.Equal(t, 0, analyzer.callCount())
}

// TestManagerAnalysisFailureMarksFailed 分析失败时任务推进到FAILED终态
func TestManagerAnalysisFailureMarksFailed(t *testing.T) {
	store := newMockEvaluationStore()
	analyzer := &mockAnalyzer{
		outcome: &types.AnalysisOutcome{PartialVisualOnly: true, Visual: &types.VisualAnalysis{}},
		err:     errors.New("内容轨道超时"),
	}
	m := NewManager(store, analyzer)

	eval, started, err := m.RequestEvaluation(context.Background(), docForUser("user-1"))
	require.NoError(t, err)
	require.True(t, started)

	m.Wait()
	assert.Equal(t, constants.EvaluationStatusFailed, store.statusOf(eval.EvaluationID))
	assert.Contains(t, store.evaluations[eval.EvaluationID].ErrorMessage, "内容轨道超时")
	assert.Equal(t, []string{eval.EvaluationID}, store.failCalls)
}

// TestManagerConcurrentRequestsSingleEvaluation 并发请求同一用户只产生一次分析
func TestManagerConcurrentRequestsSingleEvaluation(t *testing.T) {
	store := newMockEvaluationStore()
	// 阻塞分析器：保证第一条任务在所有请求发完之前不会走到终态
	analyzer := &mockAnalyzer{outcome: successOutcome(), block: make(chan struct{})}
	m := NewManager(store, analyzer)

	const goroutines = 16
	var wg sync.WaitGroup
	startedCount := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, started, err := m.RequestEvaluation(context.Background(), docForUser("user-1"))
			require.NoError(t, err)
			startedCount <- started
		}()
	}
	wg.Wait()
	close(startedCount)

	started := 0
	for s := range startedCount {
		if s {
			started++
		}
	}
	assert.Equal(t, 1, started, "并发请求只应有一个真正创建任务")

	close(analyzer.block)
	m.Wait()
	assert.Equal(t, 1, analyzer.callCount())
}

// TestManagerTimeoutMarksFailedWithTimeoutMessage 分析超时时失败原因注明超时
func TestManagerTimeoutMarksFailedWithTimeoutMessage(t *testing.T) {
	store := newMockEvaluationStore()
	analyzer := &mockAnalyzer{waitCtx: true}
	m := NewManager(store, analyzer, WithEvaluationTimeout(20*time.Millisecond))

	eval, started, err := m.RequestEvaluation(context.Background(), docForUser("user-1"))
	require.NoError(t, err)
	require.True(t, started)

	m.Wait()
	assert.Equal(t, constants.EvaluationStatusFailed, store.statusOf(eval.EvaluationID))
	assert.Contains(t, store.evaluations[eval.EvaluationID].ErrorMessage, "分析超时")
}

// TestManagerMissingUserID 缺少用户ID直接报错
func TestManagerMissingUserID(t *testing.T) {
	m := NewManager(newMockEvaluationStore(), &mockAnalyzer{outcome: successOutcome()})

	_, _, err := m.RequestEvaluation(context.Background(), &types.Document{ParsedText: "文本"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseFailed))
}

// TestManagerStoreErrorPropagates 存储层错误向上传播
func TestManagerStoreErrorPropagates(t *testing.T) {
	store := newMockEvaluationStore()
	store.createErr = errors.New("connection refused")
	m := NewManager(store, &mockAnalyzer{outcome: successOutcome()})

	_, _, err := m.RequestEvaluation(context.Background(), docForUser("user-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseFailed))
}

// TestManagerRecordExtractionFailure 提取失败直接登记FAILED评估
func TestManagerRecordExtractionFailure(t *testing.T) {
	store := newMockEvaluationStore()
	analyzer := &mockAnalyzer{outcome: successOutcome()}
	m := NewManager(store, analyzer)

	eval, err := m.RecordExtractionFailure(context.Background(), "user-1", "tika server unreachable")
	require.NoError(t, err)
	assert.Equal(t, constants.EvaluationStatusFailed, eval.Status)
	assert.Equal(t, constants.EvaluationStatusFailed, store.statusOf(eval.EvaluationID))
	assert.Contains(t, store.evaluations[eval.EvaluationID].ErrorMessage, "tika server unreachable")
	assert.Equal(t, 0, analyzer.callCount(), "提取失败不应进入分析轨道")
}

// TestManagerExtractionFailureKeepsExistingPending 已有在途任务时提取失败不覆盖该任务
func TestManagerExtractionFailureKeepsExistingPending(t *testing.T) {
	store := newMockEvaluationStore()
	existing, created, err := store.CreatePendingIfAbsent(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, created)

	m := NewManager(store, &mockAnalyzer{outcome: successOutcome()})

	eval, err := m.RecordExtractionFailure(context.Background(), "user-1", "tika server unreachable")
	require.NoError(t, err)
	assert.Equal(t, existing.EvaluationID, eval.EvaluationID)
	assert.Equal(t, constants.EvaluationStatusPending, store.statusOf(existing.EvaluationID))
	assert.Empty(t, store.failCalls, "在途任务不应被提取失败置为失败")
}
