package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"resume-insight-go/internal/api/handler"
	"resume-insight-go/internal/matching"
	"resume-insight-go/internal/query"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler) {
	api := h.Group("/api/v1")

	api.POST("/resume/upload", func(c context.Context, ctx *app.RequestContext) {
		// 获取上传的文件
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		req := &handler.ResumeUploadRequest{
			UserID:     ctx.PostForm("user_id"),
			Filename:   fileHeader.Filename,
			FileReader: file,
			FileSize:   fileHeader.Size,
		}

		// 可选的页面截图，供视觉轨道使用
		if previewHeader, pErr := ctx.FormFile("preview"); pErr == nil && previewHeader != nil {
			if previewFile, oErr := previewHeader.Open(); oErr == nil {
				if previewBytes, rErr := io.ReadAll(previewFile); rErr == nil {
					req.Preview = previewBytes
				}
				previewFile.Close()
			}
		}

		// 可选的求职偏好，JSON对象
		if prefsRaw := ctx.PostForm("preferences"); prefsRaw != "" {
			var prefs map[string]string
			if jErr := json.Unmarshal([]byte(prefsRaw), &prefs); jErr != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "preferences 不是合法的JSON对象"})
				return
			}
			req.Preferences = prefs
		}

		resp, err := resumeHandler.HandleResumeUpload(c, req)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 重新发起评估
	api.POST("/users/:user_id/evaluations", func(c context.Context, ctx *app.RequestContext) {
		userID := ctx.Param("user_id")
		eval, started, err := resumeHandler.RequestReevaluation(c, userID)
		if err != nil {
			if errors.Is(err, matching.ErrProfileNotFound) {
				ctx.JSON(consts.StatusNotFound, utils.H{"error": "用户档案不存在"})
				return
			}
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{
			"evaluation_id": eval.EvaluationID,
			"status":        eval.Status,
			"started":       started,
		})
	})

	// 最近一次评估的状态，供客户端轮询
	api.GET("/users/:user_id/evaluations/latest", func(c context.Context, ctx *app.RequestContext) {
		view, err := resumeHandler.QueryService().LatestStatus(c, ctx.Param("user_id"))
		if err != nil {
			writeQueryError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, view)
	})

	// 最近一次评估的完整报告
	api.GET("/users/:user_id/report", func(c context.Context, ctx *app.RequestContext) {
		report, err := resumeHandler.QueryService().LatestReport(c, ctx.Param("user_id"))
		if err != nil {
			writeQueryError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, report)
	})

	// 指定评估的完整报告
	api.GET("/evaluations/:evaluation_id", func(c context.Context, ctx *app.RequestContext) {
		report, err := resumeHandler.QueryService().Report(c, ctx.Param("evaluation_id"))
		if err != nil {
			writeQueryError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, report)
	})

	// 评估历史
	api.GET("/users/:user_id/evaluations", func(c context.Context, ctx *app.RequestContext) {
		limit := 0
		if raw := ctx.Query("limit"); raw != "" {
			if parsed, pErr := strconv.Atoi(raw); pErr == nil {
				limit = parsed
			}
		}
		views, err := resumeHandler.QueryService().History(c, ctx.Param("user_id"), limit)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"evaluations": views})
	})

	// 原始简历的预签名下载链接
	api.GET("/users/:user_id/resume/url", func(c context.Context, ctx *app.RequestContext) {
		url, err := resumeHandler.ResumeDownloadURL(c, ctx.Param("user_id"))
		if err != nil {
			if errors.Is(err, matching.ErrProfileNotFound) {
				ctx.JSON(consts.StatusNotFound, utils.H{"error": "用户档案不存在"})
				return
			}
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"url": url})
	})

	// 岗位匹配结果，force=true 跳过缓存强制重算
	api.GET("/users/:user_id/matches", func(c context.Context, ctx *app.RequestContext) {
		force := ctx.Query("force") == "true"
		result, err := resumeHandler.MatchService().RequestMatch(c, ctx.Param("user_id"), force)
		if err != nil {
			if errors.Is(err, matching.ErrProfileNotFound) || errors.Is(err, matching.ErrResumeNotParsed) {
				ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
				return
			}
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	// 添加健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// writeQueryError 把查询层错误映射为HTTP状态码
func writeQueryError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, query.ErrEvaluationNotFound):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": "评估记录不存在"})
	case errors.Is(err, query.ErrMalformedRecord):
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "评估记录数据损坏"})
	default:
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
	}
}
