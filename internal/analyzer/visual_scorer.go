package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"resume-insight-go/internal/llm"
	"resume-insight-go/internal/types"
)

// VisualScorer 视觉轨道分析器接口
type VisualScorer interface {
	// Analyze 对简历预览图做排版与可读性分析
	Analyze(ctx context.Context, doc *types.Document) (*types.VisualAnalysis, error)
}

// VLMVisualScorer 基于多模态模型的视觉轨道分析器
type VLMVisualScorer struct {
	visionModel    llm.VisionModel
	promptTemplate string
	logger         *log.Logger
}

var _ VisualScorer = (*VLMVisualScorer)(nil)

// NewVLMVisualScorer 创建一个新的视觉轨道分析器实例
func NewVLMVisualScorer(visionModel llm.VisionModel, logger *log.Logger) *VLMVisualScorer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	scorer := &VLMVisualScorer{
		visionModel: visionModel,
		logger:      logger,
	}
	scorer.generatePromptTemplate()
	return scorer
}

func (s *VLMVisualScorer) generatePromptTemplate() {
	s.promptTemplate = `请作为一名专业的简历排版顾问，分析这张简历页面截图的视觉呈现质量，并严格按照下面的JSON格式输出：

{
  "strengths": ["视觉呈现上的优势，如留白得当、层级清晰"],
  "weaknesses": ["视觉呈现上的不足"],
  "recommendations": ["具体可执行的排版改进建议"],
  "layout_assessment": "对整体版式的一句话评价",
  "typography_assessment": "对字体与字号使用的一句话评价",
  "readability_assessment": "对可读性的一句话评价"
}

**分析要求：**
1. 只评估视觉与排版维度（布局、对齐、字体、留白、信息密度），不评价简历内容本身。
2. 所有输出使用中文，建议必须具体可执行。
3. 完整输出必须是一个合法的JSON对象，禁止输出任何额外文本或Markdown标记。`
}

// Analyze 执行视觉轨道分析
func (s *VLMVisualScorer) Analyze(ctx context.Context, doc *types.Document) (*types.VisualAnalysis, error) {
	if s.visionModel == nil {
		return nil, fmt.Errorf("VLMVisualScorer: visionModel is not initialized")
	}
	if doc == nil || len(doc.PreviewImage) == 0 {
		return nil, fmt.Errorf("VLMVisualScorer: 预览图为空")
	}

	responseText, err := s.visionModel.GenerateWithImage(ctx, s.promptTemplate, doc.PreviewImage)
	if err != nil {
		s.logger.Printf("[VLMVisualScorer] vision model call error: %v", err)
		return nil, fmt.Errorf("VLMVisualScorer: vision model call failed: %w", err)
	}
	if strings.TrimSpace(responseText) == "" {
		return nil, fmt.Errorf("VLMVisualScorer: vision model returned empty response")
	}

	jsonStr := extractJSONFromResponse(responseText)
	if jsonStr == "" {
		return nil, fmt.Errorf("VLMVisualScorer: failed to extract JSON from vision response. Content: %s", responseText)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var result types.VisualAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		fixedJSONStr := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixedJSONStr), &result); jsonErr != nil {
			return nil, fmt.Errorf("VLMVisualScorer: failed to unmarshal vision JSON response after sanitization. Original error: %w. Sanitization error: %v", err, jsonErr)
		}
	}

	// 三段评语都为空且没有任何条目时视为无效响应
	if len(result.Strengths) == 0 && len(result.Weaknesses) == 0 && len(result.Recommendations) == 0 &&
		result.LayoutAssessment == "" && result.TypographyAssessment == "" && result.ReadabilityAssessment == "" {
		return nil, fmt.Errorf("VLMVisualScorer: vision response carries no usable fields")
	}

	return &result, nil
}
