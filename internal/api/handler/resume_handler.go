package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"resume-insight-go/internal/config"
	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/evaluation"
	"resume-insight-go/internal/logger"
	"resume-insight-go/internal/matching"
	"resume-insight-go/internal/parser"
	"resume-insight-go/internal/query"
	storage2 "resume-insight-go/internal/storage"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/types"
	"resume-insight-go/pkg/utils"

	"github.com/gofrs/uuid/v5"
)

// ResumeHandler 简历处理器，串联上传、解析、评估与匹配的完整流程
type ResumeHandler struct {
	cfg       *config.Config
	storage   *storage2.Storage
	extractor parser.TextExtractor
	evaluator *evaluation.Manager
	matcher   *matching.Service
	querySvc  *query.Service
}

// NewResumeHandler 创建一个新的简历处理器
func NewResumeHandler(
	cfg *config.Config,
	storage *storage2.Storage,
	extractor parser.TextExtractor,
	evaluator *evaluation.Manager,
	matcher *matching.Service,
	querySvc *query.Service,
) *ResumeHandler {
	return &ResumeHandler{
		cfg:       cfg,
		storage:   storage,
		extractor: extractor,
		evaluator: evaluator,
		matcher:   matcher,
		querySvc:  querySvc,
	}
}

// ResumeUploadResponse 简历上传响应
type ResumeUploadResponse struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// ResumeUploadRequest 简历上传输入
type ResumeUploadRequest struct {
	UserID      string
	Filename    string
	FileReader  io.Reader
	FileSize    int64
	Preview     []byte            // 可选的页面截图，供视觉轨道使用
	Preferences map[string]string // 可选的求职偏好
}

// HandleResumeUpload 处理简历上传请求：
// 文件MD5去重 -> 上传MinIO -> 发布消息，真正的解析与评估由消费者异步完成。
func (h *ResumeHandler) HandleResumeUpload(ctx context.Context, req *ResumeUploadRequest) (*ResumeUploadResponse, error) {
	if req.UserID == "" {
		// 首次上传允许不带用户ID，由服务端生成
		uuidV7, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
		}
		req.UserID = uuidV7.String()
	}

	// 0. 读取文件内容并计算文件本身的MD5 (需要在上传MinIO前，且reader只能读一次)
	fileBytes, err := io.ReadAll(req.FileReader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	if len(fileBytes) == 0 {
		return nil, fmt.Errorf("上传文件内容为空")
	}
	fileMD5Hex := utils.CalculateMD5(fileBytes)

	// 同一份文件重复上传直接跳过，不再走解析与评估
	exists, err := h.storage.Redis.CheckAndAddRawFileMD5(ctx, fileMD5Hex)
	if err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("md5", fileMD5Hex).
			Msg("查询Redis文件MD5 Set失败")
		return nil, fmt.Errorf("检查文件MD5重复性时Redis查询失败: %w", err)
	}
	if exists {
		logger.Ctx(ctx).Info().
			Str("md5", fileMD5Hex).
			Str("filename", req.Filename).
			Msg("检测到重复的文件MD5，跳过处理")
		return &ResumeUploadResponse{
			UserID: req.UserID,
			Status: "DUPLICATE_FILE_SKIPPED",
		}, nil
	}

	// 1. 获取文件扩展名
	ext := filepath.Ext(req.Filename)
	if ext == "" {
		ext = ".pdf" // 默认为PDF
	}

	// 2. 上传原始文件到MinIO
	originalObjectKey, err := h.storage.MinIO.UploadResumeFile(ctx, req.UserID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		return nil, fmt.Errorf("上传简历到MinIO失败: %w", err)
	}

	// 3. 可选的预览图，上传失败只降级视觉轨道，不阻塞主流程
	var previewObjectKey string
	if len(req.Preview) > 0 {
		previewObjectKey, err = h.storage.MinIO.UploadPreviewImage(ctx, req.UserID, req.Preview)
		if err != nil {
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("user_id", req.UserID).
				Msg("上传预览图失败，视觉轨道将被跳过")
			previewObjectKey = ""
		}
	}

	var preferencesJSON string
	if len(req.Preferences) > 0 {
		if raw, mErr := json.Marshal(req.Preferences); mErr == nil {
			preferencesJSON = string(raw)
		}
	}

	// 4. 构建消息并发送到RabbitMQ
	message := storage2.ResumeUploadedMessage{
		UserID:           req.UserID,
		UploadTimestamp:  time.Now(),
		OriginalFilename: req.Filename,
		ResumeObjectKey:  originalObjectKey,
		RawFileMD5:       fileMD5Hex,
		PreviewObjectKey: previewObjectKey,
		PreferencesJSON:  preferencesJSON,
		ForceRefresh:     true,
	}

	err = h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.ResumeEventsExchange,
		h.cfg.RabbitMQ.UploadedRoutingKey,
		message,
		true, // 持久化
	)
	if err != nil {
		// 消息没发出去，回滚MD5去重记录，让用户可以重试
		if _, dErr := h.storage.Redis.Client.SRem(ctx, constants.RawFileMD5SetKey, fileMD5Hex).Result(); dErr != nil {
			logger.Ctx(ctx).Warn().Err(dErr).Str("md5", fileMD5Hex).Msg("回滚文件MD5去重记录失败")
		}
		return nil, fmt.Errorf("发布消息到RabbitMQ失败: %w", err)
	}

	// 5. 返回响应
	return &ResumeUploadResponse{
		UserID: req.UserID,
		Status: "SUBMITTED_FOR_PROCESSING",
	}, nil
}

// StartResumeUploadConsumer 启动简历上传消费者
func (h *ResumeHandler) StartResumeUploadConsumer(ctx context.Context) error {
	logger.Info().
		Str("exchange", h.cfg.RabbitMQ.ResumeEventsExchange).
		Str("routing_key", h.cfg.RabbitMQ.UploadedRoutingKey).
		Msg("初始化RabbitMQ配置")

	// 1. 确保交换机和队列存在
	if err := h.storage.RabbitMQ.EnsureExchange(h.cfg.RabbitMQ.ResumeEventsExchange, "direct", true); err != nil {
		return fmt.Errorf("确保交换机存在失败: %w", err)
	}
	if err := h.storage.RabbitMQ.EnsureQueue(h.cfg.RabbitMQ.RawResumeQueue, true); err != nil {
		return fmt.Errorf("确保队列存在失败: %w", err)
	}
	if err := h.storage.RabbitMQ.BindQueue(
		h.cfg.RabbitMQ.RawResumeQueue,
		h.cfg.RabbitMQ.ResumeEventsExchange,
		h.cfg.RabbitMQ.UploadedRoutingKey,
	); err != nil {
		return fmt.Errorf("绑定队列失败: %w", err)
	}

	logger.Info().
		Str("queue", h.cfg.RabbitMQ.RawResumeQueue).
		Int("prefetch_count", h.cfg.RabbitMQ.PrefetchCount).
		Msg("简历上传消费者就绪")

	// 2. 启动消费者
	_, err := h.storage.RabbitMQ.StartConsumer(h.cfg.RabbitMQ.RawResumeQueue, h.cfg.RabbitMQ.PrefetchCount, func(data []byte) bool {
		var message storage2.ResumeUploadedMessage
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Error().Err(err).Msg("解析消息失败")
			return false
		}

		if err := h.processUploadedResume(ctx, message); err != nil {
			logger.Error().
				Err(err).
				Str("user_id", message.UserID).
				Msg("处理简历上传消息失败")
			return false
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}
	return nil
}

// processUploadedResume 消费上传消息：下载 -> 提取文本 -> 章节切分 -> 档案落库 -> 发起评估与匹配
func (h *ResumeHandler) processUploadedResume(ctx context.Context, message storage2.ResumeUploadedMessage) error {
	if h.extractor == nil {
		return fmt.Errorf("文本提取器组件未初始化")
	}

	// 1. 从MinIO下载原始文件内容
	fileContentBytes, err := h.storage.MinIO.GetResumeFile(ctx, message.ResumeObjectKey)
	if err != nil {
		return fmt.Errorf("从MinIO获取简历文件失败: %w", err)
	}

	// 2. 提取文本
	text, _, err := h.extractor.ExtractTextFromBytes(ctx, fileContentBytes, message.ResumeObjectKey)
	if err != nil {
		// 提取失败直接登记FAILED评估，让状态查询能看到失败原因
		if _, rErr := h.evaluator.RecordExtractionFailure(ctx, message.UserID, err.Error()); rErr != nil {
			logger.Ctx(ctx).Error().Err(rErr).Str("user_id", message.UserID).Msg("登记提取失败评估时出错")
		}
		return fmt.Errorf("提取简历文本失败: %w", err)
	}
	textMD5Hex := utils.CalculateMD5([]byte(text))

	// 3. 将文本存储到MinIO
	textObjectKey, err := h.storage.MinIO.UploadParsedText(ctx, message.UserID, text)
	if err != nil {
		return fmt.Errorf("上传解析文本到MinIO失败: %w", err)
	}

	// 4. 更新用户档案
	profile := &models.UserProfile{
		UserID:            message.UserID,
		OriginalFilename:  message.OriginalFilename,
		ResumeObjectKey:   message.ResumeObjectKey,
		ParsedTextPathOSS: textObjectKey,
		PreviewImagePath:  message.PreviewObjectKey,
		ResumeTextMD5:     textMD5Hex,
	}
	if message.PreferencesJSON != "" {
		profile.PreferencesJSON = []byte(message.PreferencesJSON)
	}
	if err := h.storage.MySQL.UpsertUserProfile(ctx, profile); err != nil {
		return fmt.Errorf("更新用户档案失败: %w", err)
	}

	// 5. 组装分析文档
	doc := &types.Document{
		UserID:     message.UserID,
		ParsedText: text,
		Sections:   parser.SplitSections(text),
	}
	if message.PreferencesJSON != "" {
		var prefs map[string]string
		if err := json.Unmarshal([]byte(message.PreferencesJSON), &prefs); err == nil {
			doc.Preferences = prefs
		}
	}
	if message.PreviewObjectKey != "" {
		preview, pErr := h.storage.MinIO.GetPreviewImage(ctx, message.PreviewObjectKey)
		if pErr != nil {
			logger.Ctx(ctx).Warn().
				Err(pErr).
				Str("user_id", message.UserID).
				Msg("下载预览图失败，视觉轨道将被跳过")
		} else {
			doc.PreviewImage = preview
		}
	}

	// 6. 发起评估，空文本会在Manager内直接置为失败终态
	if eval, started, err := h.evaluator.RequestEvaluation(ctx, doc); err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("user_id", message.UserID).
			Msg("发起评估失败")
	} else {
		logger.Ctx(ctx).Info().
			Str("user_id", message.UserID).
			Str("evaluation_id", eval.EvaluationID).
			Bool("started", started).
			Msg("评估任务已受理")
	}

	// 7. 上传后强制刷新匹配结果，失败不影响消息确认
	if message.ForceRefresh && h.matcher != nil {
		if err := h.matcher.RefreshUser(ctx, message.UserID); err != nil {
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("user_id", message.UserID).
				Msg("上传后刷新匹配结果失败")
		}
	}

	return nil
}

// RequestReevaluation 为已有简历的用户重新发起评估
func (h *ResumeHandler) RequestReevaluation(ctx context.Context, userID string) (*models.Evaluation, bool, error) {
	profile, err := h.storage.MySQL.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("读取用户档案失败: %w", err)
	}
	if profile == nil || profile.ParsedTextPathOSS == "" {
		return nil, false, matching.ErrProfileNotFound
	}

	text, err := h.storage.MinIO.GetParsedText(ctx, profile.ParsedTextPathOSS)
	if err != nil {
		return nil, false, fmt.Errorf("读取解析文本失败: %w", err)
	}

	doc := &types.Document{
		UserID:     userID,
		ParsedText: text,
		Sections:   parser.SplitSections(text),
	}
	if len(profile.PreferencesJSON) > 0 {
		var prefs map[string]string
		if err := json.Unmarshal(profile.PreferencesJSON, &prefs); err == nil {
			doc.Preferences = prefs
		}
	}
	if profile.PreviewImagePath != "" {
		if preview, pErr := h.storage.MinIO.GetPreviewImage(ctx, profile.PreviewImagePath); pErr == nil {
			doc.PreviewImage = preview
		}
	}

	return h.evaluator.RequestEvaluation(ctx, doc)
}

// ResumeDownloadURL 为用户的原始简历生成限时的预签名下载链接
func (h *ResumeHandler) ResumeDownloadURL(ctx context.Context, userID string) (string, error) {
	profile, err := h.storage.MySQL.GetUserProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("读取用户档案失败: %w", err)
	}
	if profile == nil || profile.ResumeObjectKey == "" {
		return "", matching.ErrProfileNotFound
	}
	return h.storage.MinIO.GetPresignedURL(ctx, profile.ResumeObjectKey, constants.ResumeDownloadURLExpire)
}

// QueryService 暴露只读查询服务
func (h *ResumeHandler) QueryService() *query.Service {
	return h.querySvc
}

// MatchService 暴露匹配服务
func (h *ResumeHandler) MatchService() *matching.Service {
	return h.matcher
}
