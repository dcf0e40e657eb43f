/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、配置加载、缓存与锁选择、各业务服务装配
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务；
 *        Redis未配置时缓存与运行锁自动退回进程内实现
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/go-redis/redis/v8
 * @refs dev_docs/model.md
 */

package service

import (
	"context"
	"churn-service/logger"
	"churn-service/service/config"
	"churn-service/service/dashboard"
	"churn-service/service/database"
	"churn-service/service/event"
	"churn-service/service/prediction"
	"churn-service/service/scheduler"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                     *gorm.DB
	GlobalConfig           *config.Config
	GlobalStore            *prediction.Store
	GlobalCache            prediction.Cache
	GlobalPublisher        *event.Publisher
	GlobalOrchestrator     *prediction.Orchestrator
	GlobalDashboardService *dashboard.Service
	GlobalAlertsService    *dashboard.AlertsService
	GlobalInsightsService  *dashboard.InsightsService
	GlobalSchedulerService *scheduler.SchedulerService
)

func init() {
	logger.InitLogger()
	GlobalConfig = config.Load()
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "postgres")
		dbname := getEnvWithDefault("DB_NAME", "churn")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")
}

// initServices 初始化服务
func initServices() {
	cfg := GlobalConfig

	// Redis可选：配置了REDIS_HOST则缓存与运行锁使用Redis，否则退回进程内实现
	var runLock prediction.RunLock
	if cfg.RedisHost != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis连接失败: %v", err)
		}

		GlobalCache = prediction.NewRedisCache(redisClient, cfg.PredictionCacheTTL)
		runLock = prediction.NewRedisRunLock(redisClient)
		log.Println("Redis连接成功，预测缓存与运行锁使用Redis实现")
	} else {
		GlobalCache = prediction.NewMemoryCache(cfg.PredictionCacheTTL)
		runLock = prediction.NewLocalRunLock()
		log.Println("未配置Redis，预测缓存与运行锁使用进程内实现")
	}

	GlobalPublisher = event.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if GlobalPublisher.Enabled() {
		log.Printf("Kafka事件发布已启用: topic=%s", cfg.KafkaTopic)
	}

	GlobalStore = prediction.NewStore(DB)
	scoringClient := prediction.NewScoringClient(cfg)
	GlobalOrchestrator = prediction.NewOrchestrator(DB, GlobalStore, GlobalCache, scoringClient, runLock, GlobalPublisher, cfg.PredictionBatchSize)

	GlobalDashboardService = dashboard.NewService(DB, GlobalStore, time.Minute)
	GlobalAlertsService = dashboard.NewAlertsService(DB, GlobalStore, GlobalPublisher, cfg.AlertTicketThreshold)
	GlobalInsightsService = dashboard.NewInsightsService(DB, GlobalStore, 15*time.Minute)

	// 全量运行终结后预测缓存整体失效，仪表盘与洞察的聚合结果缓存随之一起清除
	GlobalOrchestrator.OnRunCompleted(GlobalDashboardService.ClearCache)
	GlobalOrchestrator.OnRunCompleted(GlobalInsightsService.ClearCache)

	// 配置了cron表达式才启动定时全量预测
	GlobalSchedulerService = scheduler.NewSchedulerService(GlobalOrchestrator)
	if cfg.PredictionCron != "" {
		if err := GlobalSchedulerService.Start(cfg.PredictionCron); err != nil {
			log.Printf("启动定时预测服务失败: %v", err)
		}
	}

	log.Println("服务初始化完成")
}
