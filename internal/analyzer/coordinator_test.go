package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"resume-insight-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用内容轨道模拟器
type mockContentScorer struct {
	result    *types.ContentAnalysis
	err       error
	delay     time.Duration
	callCount int
}

func (m *mockContentScorer) Analyze(ctx context.Context, doc *types.Document) (*types.ContentAnalysis, error) {
	m.callCount++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.result, m.err
}

// 测试用视觉轨道模拟器
type mockVisualScorer struct {
	result    *types.VisualAnalysis
	err       error
	callCount int
}

func (m *mockVisualScorer) Analyze(ctx context.Context, doc *types.Document) (*types.VisualAnalysis, error) {
	m.callCount++
	return m.result, m.err
}

func contentResult() *types.ContentAnalysis {
	return &types.ContentAnalysis{
		OverallScore:    74,
		Recommendations: []string{"补充量化数据", "精简项目描述"},
	}
}

func visualResult() *types.VisualAnalysis {
	return &types.VisualAnalysis{
		Recommendations: []string{"增加留白", "补充量化数据"},
	}
}

// TestCoordinatorBothTracks 两条轨道都成功时合并建议
func TestCoordinatorBothTracks(t *testing.T) {
	content := &mockContentScorer{result: contentResult()}
	visual := &mockVisualScorer{result: visualResult()}
	c := NewCoordinator(content, visual)

	doc := testDocument()
	doc.PreviewImage = []byte{0x89, 0x50, 0x4e, 0x47}

	outcome, err := c.Analyze(context.Background(), doc)
	require.NoError(t, err)
	require.NotNil(t, outcome.Content)
	require.NotNil(t, outcome.Visual)
	assert.False(t, outcome.PartialVisualOnly)

	// 内容建议在前，视觉侧的重复建议被去重
	assert.Equal(t, []string{"补充量化数据", "精简项目描述", "增加留白"}, outcome.MergedRecommendations)
	assert.Equal(t, 1, content.callCount)
	assert.Equal(t, 1, visual.callCount)
}

// TestCoordinatorNoPreviewSkipsVisual 没有预览图时不触发视觉轨道
func TestCoordinatorNoPreviewSkipsVisual(t *testing.T) {
	content := &mockContentScorer{result: contentResult()}
	visual := &mockVisualScorer{result: visualResult()}
	c := NewCoordinator(content, visual)

	outcome, err := c.Analyze(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Nil(t, outcome.Visual)
	assert.Equal(t, 0, visual.callCount, "无预览图时不应调用视觉轨道")
	assert.Equal(t, []string{"补充量化数据", "精简项目描述"}, outcome.MergedRecommendations)
}

// TestCoordinatorVisualFailureDegrades 视觉轨道失败只降级，不影响整体结果
func TestCoordinatorVisualFailureDegrades(t *testing.T) {
	content := &mockContentScorer{result: contentResult()}
	visual := &mockVisualScorer{err: errors.New("vision model unavailable")}
	c := NewCoordinator(content, visual)

	doc := testDocument()
	doc.PreviewImage = []byte{0x01}

	outcome, err := c.Analyze(context.Background(), doc)
	require.NoError(t, err, "视觉轨道失败不应导致整体失败")
	assert.Nil(t, outcome.Visual)
	assert.NotNil(t, outcome.Content)
	assert.False(t, outcome.PartialVisualOnly)
}

// TestCoordinatorContentFailureIsFatal 内容轨道失败时整体失败，但保留视觉结果
func TestCoordinatorContentFailureIsFatal(t *testing.T) {
	content := &mockContentScorer{err: errors.New("LLM timeout")}
	visual := &mockVisualScorer{result: visualResult()}
	c := NewCoordinator(content, visual)

	doc := testDocument()
	doc.PreviewImage = []byte{0x01}

	outcome, err := c.Analyze(context.Background(), doc)
	require.Error(t, err)
	require.NotNil(t, outcome)
	assert.Nil(t, outcome.Content)
	assert.NotNil(t, outcome.Visual)
	assert.True(t, outcome.PartialVisualOnly)
}

// TestCoordinatorTimeout 超时后内容轨道收到取消信号，整体判定失败
func TestCoordinatorTimeout(t *testing.T) {
	content := &mockContentScorer{result: contentResult(), delay: 200 * time.Millisecond}
	c := NewCoordinator(content, nil, WithAnalysisTimeout(20*time.Millisecond))

	outcome, err := c.Analyze(context.Background(), testDocument())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, outcome.PartialVisualOnly)
}

// TestCoordinatorNilVisualScorer 未配置视觉轨道时只跑内容
func TestCoordinatorNilVisualScorer(t *testing.T) {
	content := &mockContentScorer{result: contentResult()}
	c := NewCoordinator(content, nil)

	doc := testDocument()
	doc.PreviewImage = []byte{0x01}

	outcome, err := c.Analyze(context.Background(), doc)
	require.NoError(t, err)
	assert.Nil(t, outcome.Visual)
}

// TestCoordinatorMergeLimit 自定义合并上限生效
func TestCoordinatorMergeLimit(t *testing.T) {
	content := &mockContentScorer{result: &types.ContentAnalysis{
		Recommendations: []string{"一", "二", "三"},
	}}
	c := NewCoordinator(content, nil, WithMergeLimit(2))

	outcome, err := c.Analyze(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Len(t, outcome.MergedRecommendations, 2)
}
