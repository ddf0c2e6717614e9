// Package types 定义模块间共享的领域数据结构。
// 存储层有自己的GORM模型（internal/storage/models），此处是业务流转用的内存表示。
package types

import "time"

// DocumentSection 简历解析后的一个章节
type DocumentSection struct {
	Index   int    `json:"index"`   // 章节序号，从0开始
	Title   string `json:"title"`   // 章节标题（如"工作经历"）
	Content string `json:"content"` // 章节正文
}

// Document 一次评估的输入：解析后的简历与用户偏好
type Document struct {
	UserID       string            `json:"user_id"`
	ParsedText   string            `json:"parsed_text"`             // 全文纯文本
	Sections     []DocumentSection `json:"sections,omitempty"`      // 章节划分，可为空
	PreviewImage []byte            `json:"-"`                       // 首页渲染图，为空则跳过视觉轨道
	Preferences  map[string]string `json:"preferences,omitempty"`   // 用户求职偏好（城市、岗位方向等）
}

// DimensionScore 内容轨道单个维度的评分结果
type DimensionScore struct {
	Dimension     string   `json:"dimension"`
	Score         int      `json:"score"` // 0-100
	Justification string   `json:"justification"`
	Evidence      []string `json:"evidence,omitempty"` // 已解析为原文片段的证据
}

// ContentAnalysis 内容轨道的完整输出
type ContentAnalysis struct {
	Dimensions      []DimensionScore `json:"dimensions"`
	OverallScore    int              `json:"overall_score"`
	Strengths       []string         `json:"strengths"`
	Weaknesses      []string         `json:"weaknesses"`
	MissingInfo     []string         `json:"missing_info,omitempty"`
	RedFlags        []string         `json:"red_flags,omitempty"`
	Recommendations []string         `json:"recommendations"`
}

// VisualAnalysis 视觉轨道的输出，针对排版与可读性
type VisualAnalysis struct {
	Strengths             []string `json:"strengths"`
	Weaknesses            []string `json:"weaknesses"`
	Recommendations       []string `json:"recommendations"`
	LayoutAssessment      string   `json:"layout_assessment"`
	TypographyAssessment  string   `json:"typography_assessment"`
	ReadabilityAssessment string   `json:"readability_assessment"`
}

// AnalysisOutcome 双轨道分析的聚合结果。
// 内容轨道失败时 Content 为 nil 且整次评估判定失败；
// 视觉轨道失败时 Visual 为 nil，评估仍可成功（降级）。
type AnalysisOutcome struct {
	Content               *ContentAnalysis `json:"content,omitempty"`
	Visual                *VisualAnalysis  `json:"visual,omitempty"`
	MergedRecommendations []string         `json:"merged_recommendations"`
	PartialVisualOnly     bool             `json:"partial_visual_only,omitempty"` // 仅视觉轨道成功（内容失败）
}

// OfferSummary 匹配结果中的单个岗位条目
type OfferSummary struct {
	OfferID    string   `json:"offer_id"`
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	MatchScore int      `json:"match_score"` // 0-100
	Reasons    []string `json:"reasons,omitempty"`
	Concerns   []string `json:"concerns,omitempty"`
}

// MatchResult 一次岗位匹配的完整结果，按MatchScore降序
type MatchResult struct {
	UserID      string         `json:"user_id"`
	Fingerprint string         `json:"fingerprint"` // 简历文本+偏好的MD5指纹
	Offers      []OfferSummary `json:"offers"`
	ComputedAt  time.Time      `json:"computed_at"`
}
