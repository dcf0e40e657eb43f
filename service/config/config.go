/*
 * @module service/config
 * @description 服务配置模块，从环境变量加载评分服务地址、超时预算、批次大小等配置
 * @architecture 分层架构 - 配置层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 应用启动时加载一次，之后只读
 * @rules 配置在进程启动时加载，运行期间不可变
 * @dependencies github.com/spf13/cast
 * @refs service/init.go, service/prediction/scoring_client.go
 */

package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config 服务运行配置，进程启动时加载一次后不再变更
type Config struct {
	// 外部评分服务
	ScoringServiceURL     string        // 评分服务基础地址
	ScoringConnectTimeout time.Duration // 连接超时（短）
	ScoringReadTimeout    time.Duration // 读取超时（长，需覆盖大批次评分耗时）
	ScoringFeatureVersion string        // 特征集版本，随请求头发送

	// 批量预测
	PredictionBatchSize int    // 每批次客户数
	PredictionCron      string // 定时全量评分的cron表达式，空则不启用

	// 预测缓存
	PredictionCacheTTL time.Duration

	// 预警阈值
	AlertTicketThreshold int // 支持工单数预警阈值

	// Redis（可选，未配置时使用进程内实现）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka（可选，未配置时不发布事件）
	KafkaBrokers []string
	KafkaTopic   string
}

// Load 从环境变量加载配置
func Load() *Config {
	cfg := &Config{
		ScoringServiceURL:     getEnvWithDefault("SCORING_SERVICE_URL", "http://localhost:8000"),
		ScoringConnectTimeout: cast.ToDuration(getEnvWithDefault("SCORING_CONNECT_TIMEOUT", "5s")),
		ScoringReadTimeout:    cast.ToDuration(getEnvWithDefault("SCORING_READ_TIMEOUT", "120s")),
		ScoringFeatureVersion: getEnvWithDefault("SCORING_FEATURE_VERSION", "v2"),
		PredictionBatchSize:   cast.ToInt(getEnvWithDefault("PREDICTION_BATCH_SIZE", "5000")),
		PredictionCron:        os.Getenv("PREDICTION_CRON"),
		PredictionCacheTTL:    cast.ToDuration(getEnvWithDefault("PREDICTION_CACHE_TTL", "10m")),
		AlertTicketThreshold:  cast.ToInt(getEnvWithDefault("ALERT_TICKET_THRESHOLD", "6")),
		RedisHost:             os.Getenv("REDIS_HOST"),
		RedisPort:             getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               cast.ToInt(os.Getenv("REDIS_DB")),
		KafkaTopic:            getEnvWithDefault("KAFKA_TOPIC", "churn-intelligence-events"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.PredictionBatchSize <= 0 {
		cfg.PredictionBatchSize = 5000
	}
	if cfg.ScoringConnectTimeout <= 0 {
		cfg.ScoringConnectTimeout = 5 * time.Second
	}
	if cfg.ScoringReadTimeout <= 0 {
		cfg.ScoringReadTimeout = 120 * time.Second
	}
	if cfg.PredictionCacheTTL <= 0 {
		cfg.PredictionCacheTTL = 10 * time.Minute
	}
	if cfg.AlertTicketThreshold <= 0 {
		cfg.AlertTicketThreshold = 6
	}

	return cfg
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
