package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-insight-go/internal/analyzer"
	"resume-insight-go/internal/api/handler"
	"resume-insight-go/internal/api/router"
	"resume-insight-go/internal/cache"
	"resume-insight-go/internal/config"
	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/evaluation"
	"resume-insight-go/internal/llm"
	appCoreLogger "resume-insight-go/internal/logger"
	"resume-insight-go/internal/matching"
	parser2 "resume-insight-go/internal/parser"
	"resume-insight-go/internal/query"
	"resume-insight-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/spf13/pflag"
)

// @title Resume Insight API
// @version 1.0
// @description 简历评估与岗位匹配服务的API文档
// @BasePath /api/v1
func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// PDF 文本提取器：优先Tika，否则回退Eino解析器
	var pdfExtractor parser2.TextExtractor
	if cfg.Tika.Type == "tika" && cfg.Tika.ServerURL != "" {
		var tikaOptions []parser2.TikaOption
		if cfg.Tika.Timeout > 0 {
			tikaOptions = append(tikaOptions, parser2.WithTimeout(time.Duration(cfg.Tika.Timeout)*time.Second))
		}
		tikaOptions = append(tikaOptions, parser2.WithTikaLogger(log.New(os.Stderr, "[TikaPDFMain] ", log.LstdFlags)))
		pdfExtractor = parser2.NewTikaPDFExtractor(cfg.Tika.ServerURL, tikaOptions...)
		glog.Info("使用Tika PDF解析器")
	} else {
		pdfExtractor, err = parser2.NewEinoPDFTextExtractor(ctx, parser2.WithEinoLogger(log.New(os.Stderr, "[EinoPDFMain] ", log.LstdFlags)))
		if err != nil {
			glog.Fatalf("创建Eino PDF提取器失败: %v", err)
		}
		glog.Info("使用Eino PDF解析器")
	}

	if cfg.Aliyun.APIKey == "" {
		glog.Fatal("缺少Aliyun API密钥，无法初始化LLM组件")
	}

	contentModel, err := llm.NewQwenChatModel(cfg.Aliyun.APIKey, cfg.Evaluation.ContentModel, cfg.Aliyun.APIURL)
	if err != nil {
		glog.Fatalf("初始化内容分析LLM失败: %v", err)
	}
	rankModel, err := llm.NewQwenChatModel(cfg.Aliyun.APIKey, cfg.Matching.ModelName, cfg.Aliyun.APIURL)
	if err != nil {
		glog.Fatalf("初始化匹配排序LLM失败: %v", err)
	}
	visionModel, err := llm.NewQwenVisionModel(cfg.Aliyun.APIKey, cfg.Evaluation.VisualModel, cfg.Aliyun.APIURL)
	if err != nil {
		glog.Fatalf("初始化视觉分析模型失败: %v", err)
	}
	glog.Info("LLM组件初始化成功")

	// 为分析器组件创建 Logger
	var scorerLogger, rankerLogger *log.Logger
	if cfg.Logger.Level == "debug" {
		scorerLogger = log.New(os.Stderr, "[ScorerMain] ", log.LstdFlags|log.Lshortfile)
		rankerLogger = log.New(os.Stderr, "[RankerMain] ", log.LstdFlags|log.Lshortfile)
	} else {
		scorerLogger = log.New(io.Discard, "", 0)
		rankerLogger = log.New(io.Discard, "", 0)
	}

	analysisTimeout := config.GetDuration(cfg.Evaluation.AnalysisTimeout, constants.DefaultAnalysisTimeout)

	contentScorer := analyzer.NewLLMContentScorer(contentModel, scorerLogger)
	visualScorer := analyzer.NewVLMVisualScorer(visionModel, scorerLogger)
	coordinator := analyzer.NewCoordinator(contentScorer, visualScorer,
		analyzer.WithAnalysisTimeout(analysisTimeout),
		analyzer.WithMergeLimit(cfg.Evaluation.MergeLimit),
	)
	glog.Info("双轨分析协调器初始化成功")

	evalManager := evaluation.NewManager(storageManager.MySQL, coordinator,
		evaluation.WithEvaluationTimeout(analysisTimeout),
	)

	offerRanker := matching.NewLLMOfferRanker(rankModel, rankerLogger)
	matchCache := cache.NewRedisStore(storageManager.Redis, config.GetDuration(cfg.Matching.CacheTTL, constants.DefaultMatchCacheTTL))
	matchService := matching.NewService(storageManager.MySQL, storageManager.MinIO, offerRanker, matchCache,
		matching.WithOfferLimit(cfg.Matching.OfferLimit),
	)
	glog.Info("岗位匹配服务初始化成功")

	querySvc := query.NewService(storageManager.MySQL)

	resumeHandler := handler.NewResumeHandler(cfg, storageManager, pdfExtractor, evalManager, matchService, querySvc)
	glog.Info("ResumeHandler初始化成功")

	// 上传消费者
	go func() {
		if err := resumeHandler.StartResumeUploadConsumer(context.Background()); err != nil {
			glog.Fatalf("启动简历上传消费者失败: %v", err)
		}
		glog.Info("简历上传消费者已启动")
	}()

	// 匹配刷新调度器
	matchScheduler := matching.NewScheduler(matchService, storageManager.Redis,
		matching.WithInterval(config.GetDuration(cfg.Matching.Interval, constants.DefaultMatchInterval)),
		matching.WithWorkers(cfg.Matching.Workers),
	)
	go matchScheduler.Start(ctx)

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, resumeHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	matchScheduler.Stop()
	glog.Info("匹配刷新调度器已停止")

	evalManager.Wait()
	glog.Info("在途评估任务已全部收尾")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	isProduction := os.Getenv("ENV") == "production"

	logConfig := appCoreLogger.Config{
		Level:        "debug",
		Format:       "pretty",
		TimeFormat:   time.RFC3339,
		ReportCaller: true,
	}
	if isProduction {
		logConfig.Level = "info"
		logConfig.Format = "json"
		logConfig.ReportCaller = false
	}
	appCoreLogger.Init(logConfig)

	appCoreLogger.Logger = appCoreLogger.Logger.With().
		Str("app", "resume-insight").
		Str("version", "1.0.0").
		Logger()

	// Hertz 的 glog 走同一个 zerolog 实例
	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
	if isProduction {
		glog.SetLevel(glog.LevelInfo)
	} else {
		glog.SetLevel(glog.LevelDebug)
	}

	fmt.Fprintln(os.Stderr, "Logger initialized with Zerolog (appCoreLogger & glog via adapter)")
}
