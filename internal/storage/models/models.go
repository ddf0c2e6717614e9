package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProfile 用户主表：简历对象与求职偏好
type UserProfile struct {
	UserID            string         `gorm:"type:char(36);primaryKey"`
	PreferencesJSON   datatypes.JSON `gorm:"type:json"` // 求职偏好（城市、岗位方向等）
	OriginalFilename  string         `gorm:"type:varchar(255)"`
	ResumeObjectKey   string         `gorm:"type:varchar(1024)"` // MinIO原始文件对象键
	ParsedTextPathOSS string         `gorm:"type:varchar(1024)"` // MinIO解析文本对象键
	PreviewImagePath  string         `gorm:"type:varchar(1024)"` // MinIO首页预览图对象键
	ResumeTextMD5     string         `gorm:"type:char(32);index:idx_up_resume_text_md5"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

// Evaluation 评估记录表。状态机：PENDING -> COMPLETED | FAILED
type Evaluation struct {
	EvaluationID              string         `gorm:"type:char(36);primaryKey"`
	UserID                    string         `gorm:"type:char(36);not null;index:idx_eval_user_created,priority:1"`
	Status                    string         `gorm:"type:varchar(50);default:'PENDING';index:idx_eval_status"`
	OverallScore              *int           `gorm:"type:int"`
	DimensionScoresJSON       datatypes.JSON `gorm:"type:json"` // 六维度评分明细
	ContentFeedbackJSON       datatypes.JSON `gorm:"type:json"` // 内容轨道完整输出
	VisualFeedbackJSON        datatypes.JSON `gorm:"type:json"` // 视觉轨道输出，失败降级时为NULL
	MergedRecommendationsJSON datatypes.JSON `gorm:"type:json"` // 合并后的改进建议
	ErrorMessage              string         `gorm:"type:text"` // 仅FAILED状态填充
	CreatedAt                 time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_eval_user_created,priority:2"`
	CompletedAt               *time.Time     `gorm:"type:datetime(6)"`
}

func (Evaluation) TableName() string {
	return "evaluations"
}

// JobOffer 岗位库表
type JobOffer struct {
	OfferID       string         `gorm:"type:char(36);primaryKey"`
	Title         string         `gorm:"type:varchar(255);not null"`
	Company       string         `gorm:"type:varchar(255)"`
	Location      string         `gorm:"type:varchar(255)"`
	Description   string         `gorm:"type:text;not null"`
	SkillsJSON    datatypes.JSON `gorm:"type:json"` // 岗位要求的技能关键词
	Status        string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_offers_status"`
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobOffer) TableName() string {
	return "job_offers"
}

// OfferMatch 匹配结果快照表。缓存之外的持久化副本，供历史查询
type OfferMatch struct {
	MatchID          uint64         `gorm:"primaryKey;autoIncrement"`
	UserID           string         `gorm:"type:char(36);not null;index:idx_om_user_computed,priority:1"`
	Fingerprint      string         `gorm:"type:char(32);not null;index:idx_om_fingerprint"` // 简历文本+偏好指纹
	RankedOffersJSON datatypes.JSON `gorm:"type:json;not null"`                              // 按分数降序的岗位列表
	ComputedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_om_user_computed,priority:2"`
}

func (OfferMatch) TableName() string {
	return "offer_matches"
}
