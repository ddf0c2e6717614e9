package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// OfferRanker 岗位匹配排序接口
type OfferRanker interface {
	// Rank 按与简历的契合度对岗位降序排序，最多返回 limit 条
	Rank(ctx context.Context, doc *types.Document, offers []models.JobOffer, limit int) ([]types.OfferSummary, error)
}

// LLMOfferRanker 基于LLM的岗位匹配排序器
type LLMOfferRanker struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	logger         *log.Logger
}

var _ OfferRanker = (*LLMOfferRanker)(nil)

// NewLLMOfferRanker 创建岗位匹配排序器实例
func NewLLMOfferRanker(llmModel model.ToolCallingChatModel, logger *log.Logger) *LLMOfferRanker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &LLMOfferRanker{
		llmModel: llmModel,
		logger:   logger,
	}
	r.generatePromptTemplate()
	return r
}

func (r *LLMOfferRanker) generatePromptTemplate() {
	r.promptTemplate = `你是一位资深的招聘匹配顾问。请根据【候选人简历】与【求职偏好】，评估下方【岗位列表】中每个岗位与候选人的契合度，并严格按照指定的JSON格式输出排序结果。

**请严格遵循以下JSON输出格式规范：**
{
  "matches": [
    {
      "offer_id": "岗位列表中给出的offer_id，原样返回",
      "match_score": 0-100的整数,
      "reasons": ["契合的具体原因"],
      "concerns": ["潜在的不匹配点，可为空数组"]
    }
  ]
}

**评估要求：**
1. "matches" 按 match_score 降序排列，最多返回 %d 条；明显不匹配的岗位（match_score < 30）直接剔除。
2. "offer_id" 必须来自岗位列表，禁止编造。
3. 评分要区分度明显，不要把所有岗位都打相近的分数。
4. 完整输出必须是一个合法的JSON对象，禁止输出任何额外文本或Markdown标记。

【候选人简历】:
"""
%s
"""

【求职偏好】:
"""
%s
"""

【岗位列表】:
%s

请基于以上所有指令，输出JSON排序结果。`
}

// rankedMatch LLM返回的单条匹配结果
type rankedMatch struct {
	OfferID    string   `json:"offer_id"`
	MatchScore int      `json:"match_score"`
	Reasons    []string `json:"reasons"`
	Concerns   []string `json:"concerns"`
}

type rankerResponse struct {
	Matches []rankedMatch `json:"matches"`
}

// renderOffers 把岗位渲染为带编号的文本块
func renderOffers(offers []models.JobOffer) string {
	var sb strings.Builder
	for i, offer := range offers {
		sb.WriteString(fmt.Sprintf("%d. offer_id: %s\n   职位: %s @ %s (%s)\n   技能要求: %s\n   描述: %s\n",
			i+1, offer.OfferID, offer.Title, offer.Company, offer.Location,
			string(offer.SkillsJSON), truncateRunes(offer.Description, 300)))
	}
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

// renderRankerPreferences 把偏好渲染为文本
func renderRankerPreferences(prefs map[string]string) string {
	if len(prefs) == 0 {
		return "（未提供）"
	}
	var sb strings.Builder
	for k, v := range prefs {
		sb.WriteString(fmt.Sprintf("%s: %s\n", k, v))
	}
	return sb.String()
}

// Rank 调用LLM对岗位做契合度排序
func (r *LLMOfferRanker) Rank(ctx context.Context, doc *types.Document, offers []models.JobOffer, limit int) ([]types.OfferSummary, error) {
	if r.llmModel == nil {
		return nil, fmt.Errorf("LLMOfferRanker: llmModel is not initialized")
	}
	if len(offers) == 0 {
		return []types.OfferSummary{}, nil
	}
	if limit <= 0 {
		limit = len(offers)
	}

	userMsgContent := fmt.Sprintf(r.promptTemplate, limit,
		doc.ParsedText, renderRankerPreferences(doc.Preferences), renderOffers(offers))

	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位精准的人岗匹配专家，擅长从简历与岗位要求中提取关键信号并给出可解释的匹配评分。"),
		einoschema.UserMessage(userMsgContent),
	}

	response, err := r.llmModel.Generate(ctx, messages)
	if err != nil {
		r.logger.Printf("[LLMOfferRanker] LLM call error: %v", err)
		return nil, fmt.Errorf("LLMOfferRanker: LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLMOfferRanker: LLM returned empty response")
	}

	jsonStr := extractRankerJSON(response.Content)
	if jsonStr == "" {
		return nil, fmt.Errorf("LLMOfferRanker: failed to extract JSON from LLM response. Content: %s", response.Content)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var parsed rankerResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("LLMOfferRanker: failed to unmarshal LLM JSON response: %w", err)
	}

	// offer_id 回表核验，剔除LLM编造的条目
	byID := make(map[string]models.JobOffer, len(offers))
	for _, offer := range offers {
		byID[offer.OfferID] = offer
	}

	summaries := make([]types.OfferSummary, 0, limit)
	seen := make(map[string]bool, limit)
	for _, match := range parsed.Matches {
		offer, ok := byID[match.OfferID]
		if !ok || seen[match.OfferID] {
			continue
		}
		if match.MatchScore < 0 || match.MatchScore > 100 {
			continue
		}
		seen[match.OfferID] = true
		summaries = append(summaries, types.OfferSummary{
			OfferID:    offer.OfferID,
			Title:      offer.Title,
			Company:    offer.Company,
			MatchScore: match.MatchScore,
			Reasons:    match.Reasons,
			Concerns:   match.Concerns,
		})
		if len(summaries) >= limit {
			break
		}
	}

	return summaries, nil
}

// extractRankerJSON 从文本中提取JSON字符串
func extractRankerJSON(text string) string {
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
