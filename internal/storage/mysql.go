package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"resume-insight-go/internal/config"
	"resume-insight-go/internal/constants"
	"resume-insight-go/internal/storage/models"
	"resume-insight-go/internal/tracing"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("resume-insight-go/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", sqlStatement),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// WithDisableErrSkip 设置是否禁用错误跳过
func (p *GormTracingPlugin) WithDisableErrSkip(disable bool) *GormTracingPlugin {
	p.disableErrSkip = disable
	return p
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	// 设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database).WithDisableErrSkip(true)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 迁移期间关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.UserProfile{},
		&models.Evaluation{},
		&models.JobOffer{},
		&models.OfferMatch{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// pendingCreateAttempts 并发创建撞车时事务重试的次数上限
const pendingCreateAttempts = 3

// isRetryableTxError 判断事务错误是否值得重跑。
// 不存在的行上 FOR UPDATE 拿到的是间隙锁，两个并发事务的间隙锁互相兼容，
// 各自INSERT时InnoDB会检测出死锁并回滚其中一个（1213）；唯一键冲突（1062）
// 同理说明对方刚插入成功，重跑事务就能读到那条记录。
func isRetryableTxError(err error) bool {
	var mysqlErr *mysqldrv.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1213, 1205, 1062:
			return true
		}
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// CreatePendingIfAbsent 为用户创建PENDING评估记录。
// 同一用户同时只允许一条PENDING记录：若已存在则返回现有记录且created为false。
// 在事务中用行锁读取，并发创建撞车（死锁/唯一键冲突）时重试事务，
// 重跑后能读到对方刚插入的PENDING记录，保证幂等语义。
func (m *MySQL) CreatePendingIfAbsent(ctx context.Context, userID string) (eval *models.Evaluation, created bool, err error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.CreatePendingIfAbsent", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	for attempt := 1; attempt <= pendingCreateAttempts; attempt++ {
		eval, created, err = m.createPendingTx(ctx, userID)
		if err == nil {
			break
		}
		if !isRetryableTxError(err) {
			break
		}
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
	}

	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("evaluation.created", created))
	return eval, created, nil
}

func (m *MySQL) createPendingTx(ctx context.Context, userID string) (eval *models.Evaluation, created bool, err error) {
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Evaluation
		// 1. 行锁读取用户当前的PENDING记录
		lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, constants.EvaluationStatusPending).
			First(&existing).Error

		if lookupErr == nil {
			eval = &existing
			created = false
			return nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询PENDING评估记录失败: %w", lookupErr)
		}

		// 2. 不存在则创建新记录
		newUUID, uerr := uuid.NewV7()
		if uerr != nil {
			return fmt.Errorf("生成UUIDv7失败: %w", uerr)
		}
		newEval := models.Evaluation{
			EvaluationID: newUUID.String(),
			UserID:       userID,
			Status:       constants.EvaluationStatusPending,
		}
		if cerr := tx.Create(&newEval).Error; cerr != nil {
			return fmt.Errorf("创建评估记录失败: %w", cerr)
		}
		eval = &newEval
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return eval, created, nil
}

// MarkEvaluationCompleted 将PENDING记录置为COMPLETED并写入分析结果。
// WHERE条件限定status='PENDING'，已终结的记录不会被改写。
func (m *MySQL) MarkEvaluationCompleted(ctx context.Context, evaluationID string, updates map[string]interface{}) error {
	now := time.Now()
	updates["status"] = constants.EvaluationStatusCompleted
	updates["completed_at"] = &now

	result := m.db.WithContext(ctx).Model(&models.Evaluation{}).
		Where("evaluation_id = ? AND status = ?", evaluationID, constants.EvaluationStatusPending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新评估记录为COMPLETED失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("评估记录 %s 不存在或已终结，跳过COMPLETED写入", evaluationID)
	}
	return nil
}

// MarkEvaluationFailed 将PENDING记录置为FAILED并记录失败原因
func (m *MySQL) MarkEvaluationFailed(ctx context.Context, evaluationID string, errorMessage string) error {
	now := time.Now()
	result := m.db.WithContext(ctx).Model(&models.Evaluation{}).
		Where("evaluation_id = ? AND status = ?", evaluationID, constants.EvaluationStatusPending).
		Updates(map[string]interface{}{
			"status":        constants.EvaluationStatusFailed,
			"error_message": errorMessage,
			"completed_at":  &now,
		})
	if result.Error != nil {
		return fmt.Errorf("更新评估记录为FAILED失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("评估记录 %s 不存在或已终结，跳过FAILED写入", evaluationID)
	}
	return nil
}

// GetEvaluationByID 通过评估ID获取记录，不存在时返回 (nil, nil)
func (m *MySQL) GetEvaluationByID(ctx context.Context, evaluationID string) (*models.Evaluation, error) {
	var eval models.Evaluation
	if err := m.db.WithContext(ctx).Where("evaluation_id = ?", evaluationID).First(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询评估记录失败: %w", err)
	}
	return &eval, nil
}

// LatestEvaluationByUser 获取用户最新的一条评估记录，从未评估时返回 (nil, nil)
func (m *MySQL) LatestEvaluationByUser(ctx context.Context, userID string) (*models.Evaluation, error) {
	var eval models.Evaluation
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&eval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询最新评估记录失败: %w", err)
	}
	return &eval, nil
}

// ListEvaluationsByUser 按时间倒序列出用户的评估历史
func (m *MySQL) ListEvaluationsByUser(ctx context.Context, userID string, limit int) ([]models.Evaluation, error) {
	if limit <= 0 {
		limit = 20
	}
	var evals []models.Evaluation
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&evals).Error
	if err != nil {
		return nil, fmt.Errorf("查询评估历史失败: %w", err)
	}
	return evals, nil
}

// UpsertUserProfile 创建或更新用户档案
func (m *MySQL) UpsertUserProfile(ctx context.Context, profile *models.UserProfile) error {
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"preferences_json", "original_filename", "resume_object_key",
			"parsed_text_path_oss", "preview_image_path", "resume_text_md5",
		}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("保存用户档案失败: %w", err)
	}
	return nil
}

// GetUserProfile 获取用户档案，不存在时返回 (nil, nil)
func (m *MySQL) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户档案失败: %w", err)
	}
	return &profile, nil
}

// ListUsersWithResume 列出已有解析文本的全部用户，供定时匹配循环遍历
func (m *MySQL) ListUsersWithResume(ctx context.Context) ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	err := m.db.WithContext(ctx).
		Where("parsed_text_path_oss <> ''").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	return profiles, nil
}

// ListActiveOffers 列出全部ACTIVE状态的岗位
func (m *MySQL) ListActiveOffers(ctx context.Context) ([]models.JobOffer, error) {
	var offers []models.JobOffer
	err := m.db.WithContext(ctx).
		Where("status = ?", "ACTIVE").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位列表失败: %w", err)
	}
	return offers, nil
}

// SeedOffers 批量写入岗位，主键冲突时跳过，保证幂等
func (m *MySQL) SeedOffers(ctx context.Context, offers []models.JobOffer) error {
	if len(offers) == 0 {
		return nil
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "offer_id"}},
		DoNothing: true,
	}).Create(&offers).Error
	if err != nil {
		return fmt.Errorf("批量写入岗位失败: %w", err)
	}
	return nil
}

// SaveOfferMatch 持久化一次匹配结果快照
func (m *MySQL) SaveOfferMatch(ctx context.Context, match *models.OfferMatch) error {
	if err := m.db.WithContext(ctx).Create(match).Error; err != nil {
		return fmt.Errorf("保存匹配快照失败: %w", err)
	}
	return nil
}

// LatestOfferMatch 获取用户最新的一条匹配快照，不存在时返回 (nil, nil)
func (m *MySQL) LatestOfferMatch(ctx context.Context, userID string) (*models.OfferMatch, error) {
	var match models.OfferMatch
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("computed_at DESC").
		First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询匹配快照失败: %w", err)
	}
	return &match, nil
}
