package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// ContentScorer 内容轨道分析器接口
type ContentScorer interface {
	// Analyze 对简历文本做六维度内容分析
	Analyze(ctx context.Context, doc *types.Document) (*types.ContentAnalysis, error)
}

// LLMContentScorer 基于LLM的内容轨道分析器
type LLMContentScorer struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	logger         *log.Logger
}

// LLMContentScorerOption 内容分析器的配置选项
type LLMContentScorerOption func(*LLMContentScorer)

// WithContentPromptTemplate 设置自定义提示词模板
func WithContentPromptTemplate(template string) LLMContentScorerOption {
	return func(s *LLMContentScorer) {
		s.promptTemplate = template
	}
}

var _ ContentScorer = (*LLMContentScorer)(nil)

// NewLLMContentScorer 创建一个新的内容轨道分析器实例
func NewLLMContentScorer(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...LLMContentScorerOption) *LLMContentScorer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	scorer := &LLMContentScorer{
		llmModel: llmModel,
		logger:   logger,
	}

	scorer.generatePromptTemplate()

	for _, opt := range options {
		opt(scorer)
	}

	return scorer
}

func (s *LLMContentScorer) generatePromptTemplate() {
	s.promptTemplate = `你是一位极其资深的简历顾问，请基于下面提供的【简历文本】（已按章节编号切分，格式为 section[序号] 标题），对简历内容质量进行深度分析，并严格按照指定的JSON格式输出评估结果。

**请严格遵循以下JSON输出格式规范：**
{
  "dimensions": [
    {"dimension": "completeness", "score": 0-100的整数, "justification": "评分理由", "evidence": ["section[0]", "section[2]"]},
    {"dimension": "experience_quality", "score": ..., "justification": "...", "evidence": [...]},
    {"dimension": "skills_relevance", "score": ..., "justification": "...", "evidence": [...]},
    {"dimension": "impact_evidence", "score": ..., "justification": "...", "evidence": [...]},
    {"dimension": "clarity", "score": ..., "justification": "...", "evidence": [...]},
    {"dimension": "consistency", "score": ..., "justification": "...", "evidence": [...]}
  ],
  "overall_score": 0-100的整数,
  "strengths": ["具体优势1", "具体优势2"],
  "weaknesses": ["具体不足1"],
  "missing_info": ["缺失的关键信息，如联系方式、时间线空档"],
  "red_flags": ["需要注意的风险点，例如时间线矛盾"],
  "recommendations": ["具体可执行的改进建议，按重要性降序"]
}

**分析要求：**
1. "dimensions" 必须且只能包含上述六个维度，顺序不限，每个维度恰好出现一次。
2. "evidence" 数组的元素必须引用简历章节，格式为 section[序号]，序号对应【简历文本】中标注的章节编号；没有合适的证据时数组可为空。
3. "overall_score" 应综合六个维度给出，不是简单平均：核心内容维度（经历质量、成果证据）权重更高。
4. "recommendations" 建议3-5条，必须具体、可执行，避免"优化简历"这类空泛表述。
5. 完整输出必须是一个合法的JSON对象，所有字段名和字符串值使用双引号，字符串内部的双引号必须用反斜杠转义。
6. 禁止在JSON结构之外输出任何额外文本、解释或Markdown标记。

【用户求职偏好】:
"""
%s
"""

【简历文本】:
"""
%s
"""

请基于以上所有指令，仔细分析并输出JSON结果。`
}

// renderSections 将章节渲染为带 section[i] 标注的文本，供LLM引用
func renderSections(doc *types.Document) string {
	if len(doc.Sections) == 0 {
		return doc.ParsedText
	}
	var sb strings.Builder
	for _, sec := range doc.Sections {
		sb.WriteString(fmt.Sprintf("section[%d] %s\n%s\n\n", sec.Index, sec.Title, sec.Content))
	}
	return sb.String()
}

// renderPreferences 将偏好渲染为文本
func renderPreferences(prefs map[string]string) string {
	if len(prefs) == 0 {
		return "（未提供）"
	}
	var sb strings.Builder
	for k, v := range prefs {
		sb.WriteString(fmt.Sprintf("%s: %s\n", k, v))
	}
	return sb.String()
}

// Analyze 执行内容轨道分析
func (s *LLMContentScorer) Analyze(ctx context.Context, doc *types.Document) (*types.ContentAnalysis, error) {
	if s.llmModel == nil {
		return nil, fmt.Errorf("LLMContentScorer: llmModel is not initialized")
	}
	if doc == nil || strings.TrimSpace(doc.ParsedText) == "" {
		return nil, fmt.Errorf("LLMContentScorer: 简历文本为空")
	}

	// 1. 构建Prompt
	userMsgContent := fmt.Sprintf(s.promptTemplate, renderPreferences(doc.Preferences), renderSections(doc))

	systemMsg := einoschema.SystemMessage("你是一位资深的简历内容分析专家，专注于评估简历的信息质量并给出可执行的改进建议。")
	userMsg := einoschema.UserMessage(userMsgContent)

	messages := []*einoschema.Message{systemMsg, userMsg}

	// 2. 调用LLM
	response, err := s.llmModel.Generate(ctx, messages)
	if err != nil {
		s.logger.Printf("[LLMContentScorer] LLM call error: %v", err)
		return nil, fmt.Errorf("LLMContentScorer: LLM call failed: %w", err)
	}

	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLMContentScorer: LLM returned empty response")
	}

	// 3. 解析LLM响应
	processedContent := strings.TrimPrefix(response.Content, "\uFEFF")

	jsonStr := extractJSONFromResponse(processedContent)
	if jsonStr == "" {
		return nil, fmt.Errorf("LLMContentScorer: failed to extract JSON from LLM response. Content: %s", processedContent)
	}

	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var result types.ContentAnalysis
	// ① 正常解析
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		// ② 解析失败 -> 自动修复再试一次
		fixedJSONStr := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixedJSONStr), &result); jsonErr != nil {
			return nil, fmt.Errorf("LLMContentScorer: failed to unmarshal LLM JSON response after sanitization. Original error: %w. Sanitization error: %v", err, jsonErr)
		}
	}

	// 4. 验证结果
	if err := validateContentAnalysis(&result); err != nil {
		return nil, fmt.Errorf("LLMContentScorer: invalid analysis result: %w", err)
	}

	// 5. 将evidence中的section引用解析为原文片段
	resolveEvidence(&result, doc.Sections)

	return &result, nil
}

// validateContentAnalysis 验证内容分析结果：六个维度齐全、分数都在范围内
func validateContentAnalysis(result *types.ContentAnalysis) error {
	if result.OverallScore < 0 || result.OverallScore > 100 {
		return fmt.Errorf("overall_score must be between 0 and 100, got %d", result.OverallScore)
	}

	seen := make(map[string]bool, len(result.Dimensions))
	for _, dim := range result.Dimensions {
		if dim.Score < 0 || dim.Score > 100 {
			return fmt.Errorf("dimension %q score must be between 0 and 100, got %d", dim.Dimension, dim.Score)
		}
		if seen[dim.Dimension] {
			return fmt.Errorf("dimension %q appears more than once", dim.Dimension)
		}
		seen[dim.Dimension] = true
	}

	for _, name := range constants.DimensionNames {
		if !seen[name] {
			return fmt.Errorf("missing dimension %q", name)
		}
	}
	if len(result.Dimensions) != len(constants.DimensionNames) {
		return fmt.Errorf("expected %d dimensions, got %d", len(constants.DimensionNames), len(result.Dimensions))
	}

	return nil
}

var sectionRefPattern = regexp.MustCompile(`^section\[(\d+)\]$`)

// evidenceExcerptLimit 证据片段的最大字符数
const evidenceExcerptLimit = 200

// resolveEvidence 将 section[i] 形式的证据引用替换为对应章节的原文片段。
// 引用超出范围或格式不符时原样保留，不因证据问题使整次分析失败。
func resolveEvidence(result *types.ContentAnalysis, sections []types.DocumentSection) {
	if len(sections) == 0 {
		return
	}

	byIndex := make(map[int]types.DocumentSection, len(sections))
	for _, sec := range sections {
		byIndex[sec.Index] = sec
	}

	for di := range result.Dimensions {
		for ei, ref := range result.Dimensions[di].Evidence {
			m := sectionRefPattern.FindStringSubmatch(strings.TrimSpace(ref))
			if m == nil {
				continue
			}
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			sec, ok := byIndex[idx]
			if !ok {
				continue
			}
			excerpt := sec.Content
			if runes := []rune(excerpt); len(runes) > evidenceExcerptLimit {
				excerpt = string(runes[:evidenceExcerptLimit]) + "…"
			}
			result.Dimensions[di].Evidence[ei] = fmt.Sprintf("%s: %s", sec.Title, excerpt)
		}
	}
}

// extractJSONFromResponse 从文本中提取JSON字符串
func extractJSONFromResponse(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 会遍历 src，将任何位于字符串字面量内部但并非"真正结束"的双引号写成 \"，
// 以保证整个 JSON 在 Go 端能够正常反序列化。
// 它通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该 " 是否为字符串的结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				// 遇到非转义的 "，并且当前不在字符串里 -> 开始一个新字符串
				inStr = true
				b.WriteByte(c)
			} else {
				// 当前在字符串里，检查这是不是字符串的真正结束
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				// 如果下一个非空白字符是 JSON 语法里的 :, ], }, 或 ,，说明这才是真正的 string-end
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					// 否则认为这是字符串内部的 "，需要改成 \"
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
