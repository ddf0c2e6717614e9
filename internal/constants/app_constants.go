package constants

import "time"

// 评估记录状态机：PENDING -> COMPLETED | FAILED，不存在其他迁移
const (
	// EvaluationStatusPending 评估已创建，等待后台分析完成
	EvaluationStatusPending = "PENDING"
	// EvaluationStatusCompleted 分析成功，记录不可再修改
	EvaluationStatusCompleted = "COMPLETED"
	// EvaluationStatusFailed 分析失败，error_message已填充，记录不可再修改
	EvaluationStatusFailed = "FAILED"
)

// 内容轨道的六个固定评分维度
const (
	DimensionCompleteness      = "completeness"       // 信息完整度
	DimensionExperienceQuality = "experience_quality" // 经历质量
	DimensionSkillsRelevance   = "skills_relevance"   // 技能相关性
	DimensionImpactEvidence    = "impact_evidence"    // 成果与证据
	DimensionClarity           = "clarity"            // 表达清晰度
	DimensionConsistency       = "consistency"        // 内容一致性
)

// DimensionNames 按固定顺序列出全部维度，用于校验LLM输出的完整性
var DimensionNames = []string{
	DimensionCompleteness,
	DimensionExperienceQuality,
	DimensionSkillsRelevance,
	DimensionImpactEvidence,
	DimensionClarity,
	DimensionConsistency,
}

const (
	// DefaultMergedRecommendationLimit 合并建议列表的默认上限
	DefaultMergedRecommendationLimit = 5

	// DefaultAnalysisTimeout 协调器单次分析的最长时长，超时即判定失败
	// 需要不大于客户端的轮询上限（3分钟），否则客户端会先放弃
	DefaultAnalysisTimeout = 3 * time.Minute

	// DefaultMatchCacheTTL 匹配结果缓存的有效期
	DefaultMatchCacheTTL = time.Hour

	// DefaultMatchInterval 定时匹配循环的默认唤醒间隔
	DefaultMatchInterval = time.Hour

	// DefaultMatchWorkers 单次tick内并发处理用户数的上限
	DefaultMatchWorkers = 4

	// DefaultOfferLimit 单次匹配返回的岗位数量上限
	DefaultOfferLimit = 10
)

// 存储相关常量
const (
	RawFileMD5SetKey = "resumes:file_md5s" // Redis Set，存储原始文件MD5用于去重

	MD5RecordDefaultExpire = 365 * 24 * time.Hour

	// ResumeDownloadURLExpire 原始简历预签名下载链接的有效期
	ResumeDownloadURLExpire = 15 * time.Minute
)
