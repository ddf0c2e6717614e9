package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"resume-insight-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用LLM模型模拟器
type mockChatModel struct {
	// 模拟响应
	mockResponse string
	// 用于测试的错误
	Err error
	// 记录最后一次收到的消息
	lastMessages []*schema.Message
}

// Generate 实现model.ChatModel接口
func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.lastMessages = messages
	if m.Err != nil {
		return nil, m.Err
	}
	return &schema.Message{
		Role:    "assistant",
		Content: m.mockResponse,
	}, nil
}

// Stream 实现model.ChatModel接口
func (m *mockChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

// BindTools 实现model.ChatModel接口
func (m *mockChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (m *mockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

const validContentJSON = `{
	"dimensions": [
		{"dimension": "completeness", "score": 82, "justification": "信息基本齐全", "evidence": ["section[0]"]},
		{"dimension": "experience_quality", "score": 75, "justification": "经历有深度", "evidence": ["section[1]"]},
		{"dimension": "skills_relevance", "score": 70, "justification": "技能匹配", "evidence": []},
		{"dimension": "impact_evidence", "score": 60, "justification": "缺少量化成果", "evidence": ["section[1]"]},
		{"dimension": "clarity", "score": 80, "justification": "表述清晰", "evidence": []},
		{"dimension": "consistency", "score": 85, "justification": "时间线一致", "evidence": []}
	],
	"overall_score": 74,
	"strengths": ["经历与岗位高度相关"],
	"weaknesses": ["成果缺少量化"],
	"missing_info": ["缺少联系方式"],
	"red_flags": [],
	"recommendations": ["为每段经历补充量化数据", "补充联系方式"]
}`

func testDocument() *types.Document {
	return &types.Document{
		UserID:     "user-1",
		ParsedText: "张三\n工作经历：某公司后端开发",
		Sections: []types.DocumentSection{
			{Index: 0, Title: "基本信息", Content: "张三 13800138000"},
			{Index: 1, Title: "工作经历", Content: "某公司后端开发，负责订单系统"},
		},
	}
}

// TestLLMContentScorerAnalyze 测试内容分析的完整流程
func TestLLMContentScorerAnalyze(t *testing.T) {
	mockLLM := &mockChatModel{mockResponse: validContentJSON}
	scorer := NewLLMContentScorer(mockLLM, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := scorer.Analyze(ctx, testDocument())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 74, result.OverallScore)
	assert.Len(t, result.Dimensions, 6)
	assert.Len(t, result.Recommendations, 2)

	// section引用应被替换为原文片段
	assert.Equal(t, "基本信息: 张三 13800138000", result.Dimensions[0].Evidence[0])
	assert.Equal(t, "工作经历: 某公司后端开发，负责订单系统", result.Dimensions[1].Evidence[0])

	// prompt中应包含章节标注
	require.Len(t, mockLLM.lastMessages, 2)
	assert.Contains(t, mockLLM.lastMessages[1].Content, "section[1] 工作经历")
}

// TestLLMContentScorerExtractJSONWithNoise LLM输出夹杂说明文字时仍能提取JSON
func TestLLMContentScorerExtractJSONWithNoise(t *testing.T) {
	mockLLM := &mockChatModel{
		mockResponse: "好的，以下是分析结果：\n```json\n" + validContentJSON + "\n```\n希望对你有帮助。",
	}
	scorer := NewLLMContentScorer(mockLLM, nil)

	result, err := scorer.Analyze(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Equal(t, 74, result.OverallScore)
}

// TestLLMContentScorerStripsBOM 响应以UTF-8 BOM开头时仍能正常解析
func TestLLMContentScorerStripsBOM(t *testing.T) {
	mockLLM := &mockChatModel{mockResponse: "\uFEFF" + validContentJSON}
	scorer := NewLLMContentScorer(mockLLM, nil)

	result, err := scorer.Analyze(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Equal(t, 74, result.OverallScore)
}

// TestLLMContentScorerMissingDimension 缺少维度的响应应被拒绝
func TestLLMContentScorerMissingDimension(t *testing.T) {
	incomplete := `{
		"dimensions": [
			{"dimension": "completeness", "score": 82, "justification": "ok", "evidence": []}
		],
		"overall_score": 74,
		"recommendations": ["补充"]
	}`
	mockLLM := &mockChatModel{mockResponse: incomplete}
	scorer := NewLLMContentScorer(mockLLM, nil)

	_, err := scorer.Analyze(context.Background(), testDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing dimension")
}

// TestLLMContentScorerScoreOutOfRange 分数越界的响应应被拒绝
func TestLLMContentScorerScoreOutOfRange(t *testing.T) {
	bad := `{
		"dimensions": [
			{"dimension": "completeness", "score": 182, "justification": "ok", "evidence": []},
			{"dimension": "experience_quality", "score": 75, "justification": "", "evidence": []},
			{"dimension": "skills_relevance", "score": 70, "justification": "", "evidence": []},
			{"dimension": "impact_evidence", "score": 60, "justification": "", "evidence": []},
			{"dimension": "clarity", "score": 80, "justification": "", "evidence": []},
			{"dimension": "consistency", "score": 85, "justification": "", "evidence": []}
		],
		"overall_score": 74
	}`
	mockLLM := &mockChatModel{mockResponse: bad}
	scorer := NewLLMContentScorer(mockLLM, nil)

	_, err := scorer.Analyze(context.Background(), testDocument())
	require.Error(t, err)
}

// TestLLMContentScorerLLMError LLM调用失败应向上传播
func TestLLMContentScorerLLMError(t *testing.T) {
	mockLLM := &mockChatModel{Err: errors.New("connection refused")}
	scorer := NewLLMContentScorer(mockLLM, nil)

	_, err := scorer.Analyze(context.Background(), testDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM call failed")
}

// TestLLMContentScorerEmptyText 空文本直接报错，不调用LLM
func TestLLMContentScorerEmptyText(t *testing.T) {
	mockLLM := &mockChatModel{mockResponse: validContentJSON}
	scorer := NewLLMContentScorer(mockLLM, nil)

	_, err := scorer.Analyze(context.Background(), &types.Document{UserID: "u", ParsedText: "   "})
	require.Error(t, err)
	assert.Nil(t, mockLLM.lastMessages, "空文本不应触发LLM调用")
}

// TestResolveEvidenceOutOfRange 越界的section引用原样保留
func TestResolveEvidenceOutOfRange(t *testing.T) {
	result := &types.ContentAnalysis{
		Dimensions: []types.DimensionScore{
			{Dimension: "clarity", Score: 80, Evidence: []string{"section[9]", "自由文本证据", "section[0]"}},
		},
	}
	sections := []types.DocumentSection{
		{Index: 0, Title: "基本信息", Content: "张三"},
	}

	resolveEvidence(result, sections)

	assert.Equal(t, "section[9]", result.Dimensions[0].Evidence[0], "越界引用应原样保留")
	assert.Equal(t, "自由文本证据", result.Dimensions[0].Evidence[1])
	assert.Equal(t, "基本信息: 张三", result.Dimensions[0].Evidence[2])
}

// TestResolveEvidenceExcerptLimit 超长章节内容截断为固定长度的片段
func TestResolveEvidenceExcerptLimit(t *testing.T) {
	longContent := ""
	for i := 0; i < 50; i++ {
		longContent += "这是一段很长的内容"
	}
	result := &types.ContentAnalysis{
		Dimensions: []types.DimensionScore{
			{Dimension: "clarity", Score: 80, Evidence: []string{"section[0]"}},
		},
	}
	resolveEvidence(result, []types.DocumentSection{{Index: 0, Title: "全文", Content: longContent}})

	resolved := result.Dimensions[0].Evidence[0]
	assert.LessOrEqual(t, len([]rune(resolved)), evidenceExcerptLimit+10)
	assert.Contains(t, resolved, "…")
}

// TestSanitizeJSONRepairsInnerQuotes 字符串内部未转义的双引号被修复
func TestSanitizeJSONRepairsInnerQuotes(t *testing.T) {
	broken := `{"justification": "建议使用"STAR"法则描述经历"}`
	fixed := sanitizeJSON(broken)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(fixed), &parsed))
	assert.Equal(t, `建议使用"STAR"法则描述经历`, parsed["justification"])
}

// TestExtractJSONBraceMatching 提取时按花括号层级配对
func TestExtractJSONBraceMatching(t *testing.T) {
	text := `前导文本 {"a": {"b": 1}} 尾随文本 {"c": 2}`
	assert.Equal(t, `{"a": {"b": 1}}`, extractJSONFromResponse(text))
	assert.Equal(t, "", extractJSONFromResponse("没有任何JSON"))
	assert.Equal(t, "", extractJSONFromResponse(`{"未闭合": 1`))
}
