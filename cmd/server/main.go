package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fxxsj/work-order-sub001/internal/cache"
	"github.com/fxxsj/work-order-sub001/internal/config"
	"github.com/fxxsj/work-order-sub001/internal/handler"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// .env 仅开发环境存在，找不到不算错
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting work-order service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := autoMigrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	statsCache := initCache(cfg.Redis, zapLogger)
	publisher := initPublisher(cfg.RabbitMQ, cfg.Redis, zapLogger)

	repos := repository.NewRepositories(db)
	notifier := notify.NewNotifier(repos.Notification, publisher, zapLogger)
	services := service.NewServices(service.Deps{
		DB:       db,
		Repos:    repos,
		Cache:    statsCache,
		Notifier: notifier,
		Config:   cfg,
		Logger:   zapLogger,
	})
	handlers := handler.NewHandlers(services, cfg)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 后台巡检：交期预警 + 库存一致性
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go runDeadlineScanner(bgCtx, services, zapLogger)
	go runConsistencyScanner(bgCtx, services, zapLogger)

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var db *gorm.DB
	var err error
	if cfg.UsePostgres() {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Customer{},
		&entity.Department{},
		&entity.Process{},
		&entity.Operator{},
		&entity.Artwork{},
		&entity.Die{},
		&entity.FoilingPlate{},
		&entity.EmbossingPlate{},
		&entity.Material{},
		&entity.Product{},
		&entity.ProductStockLog{},
		&entity.WorkOrder{},
		&entity.WorkOrderProcess{},
		&entity.WorkOrderProduct{},
		&entity.WorkOrderMaterial{},
		&entity.WorkOrderArtwork{},
		&entity.WorkOrderDie{},
		&entity.WorkOrderFoilingPlate{},
		&entity.WorkOrderEmbossingPlate{},
		&entity.WorkOrderTask{},
		&entity.TaskLog{},
		&entity.ProcessLog{},
		&entity.TaskAssignmentRule{},
		&entity.Notification{},
		&entity.WorkOrderApprovalLog{},
		&entity.SystemConfig{},
	)
}

func initCache(cfg config.RedisConfig, logger *zap.Logger) cache.Cache {
	if cfg.URL == "" {
		logger.Info("REDIS_URL 未配置，使用进程内缓存")
		return cache.NewMemoryCache()
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn("REDIS_URL 解析失败，回落到进程内缓存", zap.Error(err))
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(redis.NewClient(opts), logger)
}

// initPublisher 事件扇出优先走 RabbitMQ；未配置时退到 Redis 频道，
// 两者都没有则只留站内通知。
func initPublisher(mq config.RabbitMQConfig, rd config.RedisConfig, logger *zap.Logger) notify.Publisher {
	if mq.URL != "" {
		pub, err := notify.NewRabbitPublisher(mq.URL, "workorder.events", logger)
		if err == nil {
			return pub
		}
		logger.Warn("RabbitMQ 连接失败，尝试 Redis 扇出", zap.Error(err))
	}
	if rd.URL != "" {
		opts, err := redis.ParseURL(rd.URL)
		if err == nil {
			return notify.NewRedisPublisher(redis.NewClient(opts), "workorder.events.")
		}
		logger.Warn("REDIS_URL 解析失败，事件仅走站内通知", zap.Error(err))
	}
	return notify.NopPublisher{}
}

func runDeadlineScanner(ctx context.Context, svc *service.Services, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := svc.WorkOrder.ScanDeadlines(ctx); err != nil {
				logger.Error("交期预警巡检失败", zap.Error(err))
			} else if n > 0 {
				logger.Info("交期预警巡检完成", zap.Int("warned", n))
			}
		}
	}
}

func runConsistencyScanner(ctx context.Context, svc *service.Services, logger *zap.Logger) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := svc.Consistency.CheckQuantities(ctx)
			if err != nil {
				logger.Error("数量一致性巡检失败", zap.Error(err))
				continue
			}
			if len(result.Issues) > 0 {
				logger.Warn("数量一致性巡检发现偏差", zap.Int("issues", len(result.Issues)))
			}
		}
	}
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	limiter := middleware.NewRateLimiter()
	rl := cfg.RateLimit

	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": Version, "build_time": BuildTime})
	})

	v1 := r.Group("/api/v1")
	v1.Use(limiter.Limit("api", rl.UserPerHour, rl.AnonPerHour))

	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 施工单
		workorders := authorized.Group("/workorders")
		{
			workorders.GET("", h.WorkOrder.List)
			workorders.POST("", middleware.RequireCapability(middleware.CapChangeWorkOrder), h.WorkOrder.Create)
			workorders.GET("/export", limiter.Limit("export", rl.ExportPerHour, rl.ExportPerHour), h.WorkOrder.Export)
			workorders.GET("/:id", h.WorkOrder.Get)
			workorders.PUT("/:id", h.WorkOrder.Update)
			workorders.DELETE("/:id", h.WorkOrder.Delete)
			workorders.GET("/:id/approval_logs", h.WorkOrder.ApprovalLogs)

			approvals := workorders.Group("")
			approvals.Use(limiter.Limit("approval", rl.ApprovalPerHour, rl.ApprovalPerHour))
			approvals.Use(middleware.RequireCapability(middleware.CapApproveWorkOrder))
			{
				approvals.POST("/:id/approve", h.WorkOrder.Approve)
				approvals.POST("/:id/reject", h.WorkOrder.Reject)
			}
		}

		// 施工单工序
		processes := authorized.Group("/workorder-processes")
		{
			processes.GET("/:id", h.Process.Get)
			processes.GET("/:id/logs", h.Process.Logs)
			processes.POST("/:id/start", h.Process.Start)
			processes.POST("/batch_start", h.Process.BatchStart)
			processes.POST("/:id/complete", h.Process.Complete)
			processes.POST("/:id/pause", h.Process.Pause)
			processes.POST("/:id/resume", h.Process.Resume)
			processes.POST("/:id/reassign_tasks", h.Process.ReassignTasks)
		}

		// 施工单任务
		tasks := authorized.Group("/workorder-tasks")
		{
			tasks.GET("", h.Task.List)
			tasks.GET("/claimable", h.Task.Claimable)
			tasks.GET("/export", limiter.Limit("export", rl.ExportPerHour, rl.ExportPerHour), h.Task.Export)
			tasks.GET("/department_workload", h.Stats.DepartmentWorkload)
			tasks.GET("/collaboration_stats", h.Stats.Collaboration)
			tasks.GET("/:id", h.Task.Get)
			tasks.GET("/:id/logs", h.Task.Logs)
			tasks.POST("/:id/start", h.Task.Start)
			tasks.POST("/:id/pause", h.Task.Pause)
			tasks.POST("/:id/update_quantity", h.Task.UpdateQuantity)
			tasks.POST("/:id/complete", h.Task.Complete)
			tasks.POST("/:id/split", h.Task.Split)
			tasks.POST("/:id/assign", h.Task.Assign)
			tasks.POST("/:id/claim", h.Task.Claim)
			tasks.POST("/:id/cancel", h.Task.Cancel)
			tasks.POST("/batch_assign", h.Task.BatchAssign)
			tasks.POST("/batch_cancel", h.Task.BatchCancel)
			tasks.POST("/batch_update_quantity", h.Task.BatchUpdateQuantity)
		}

		// 产品库存
		products := authorized.Group("/products")
		{
			products.GET("", h.Product.List)
			products.GET("/low_stock", h.Product.LowStock)
			products.GET("/:id", h.Product.Get)
			products.GET("/:id/stock_logs", h.Product.StockLogs)
			products.POST("/:id/add_stock", h.Product.AddStock)
			products.POST("/:id/reduce_stock", h.Product.ReduceStock)
		}

		// 派工规则
		rules := authorized.Group("/task-assignment-rules")
		rules.Use(middleware.RequireCapability(middleware.CapManageRules))
		{
			rules.GET("", h.Rule.List)
			rules.POST("", h.Rule.Create)
			rules.PUT("/:id", h.Rule.Update)
			rules.DELETE("/:id", h.Rule.Delete)
			rules.GET("/preview", h.Rule.Preview)
			rules.GET("/auto_dispatch", h.Rule.GetAutoDispatch)
			rules.POST("/auto_dispatch", h.Rule.SetAutoDispatch)
		}

		// 看板
		authorized.GET("/dashboard", h.Stats.Dashboard)

		// 一致性巡检
		consistency := authorized.Group("/consistency")
		{
			consistency.POST("/stock", h.Consistency.CheckStock)
			consistency.GET("/quantities", h.Consistency.CheckQuantities)
			consistency.GET("/materials", h.Consistency.CheckMaterials)
		}

		// 站内通知
		notifications := authorized.Group("/notifications")
		{
			notifications.GET("", h.Notification.List)
			notifications.GET("/unread_count", h.Notification.UnreadCount)
			notifications.POST("/:id/read", h.Notification.MarkRead)
			notifications.POST("/read_all", h.Notification.MarkAllRead)
		}

		// 实时事件
		authorized.GET("/events/stream", h.SSE.Stream)
	}
}
