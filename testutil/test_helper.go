/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, time
 * @refs service/models
 */

package testutil

import (
	"fmt"
	"time"

	"churn-service/service/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.Customer{},
		&models.Subscription{},
		&models.CustomerMetrics{},
		&models.Prediction{},
		&models.PredictionRun{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据，按外键依赖顺序
	tables := []string{
		"ai_predictions",
		"prediction_runs",
		"customer_metrics",
		"subscriptions",
		"customers",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// CustomerOption 客户选项函数类型
type CustomerOption func(*models.Customer)

// CreateCustomer 创建测试客户
func (f *TestDataFactory) CreateCustomer(opts ...CustomerOption) *models.Customer {
	customer := &models.Customer{
		ID:       generateID("cust"),
		Genero:   "Femenino",
		Pais:     "Estados Unidos",
		Ciudad:   "New York",
		Estado:   "NY",
		Borough:  "Brooklyn",
		Segmento: "Residencial",
	}

	// 应用选项
	for _, opt := range opts {
		opt(customer)
	}

	err := f.DB.Create(customer).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test customer: %v", err))
	}

	return customer
}

// WithBorough 设置客户行政区
func WithBorough(borough string) CustomerOption {
	return func(c *models.Customer) {
		c.Borough = borough
	}
}

// WithSegmento 设置客户分层
func WithSegmento(segmento string) CustomerOption {
	return func(c *models.Customer) {
		c.Segmento = segmento
	}
}

// WithCoordinates 设置客户坐标
func WithCoordinates(lat, lon float64) CustomerOption {
	return func(c *models.Customer) {
		c.Latitud = &lat
		c.Longitud = &lon
	}
}

// SubscriptionOption 订阅选项函数类型
type SubscriptionOption func(*models.Subscription)

// CreateSubscription 创建测试订阅
func (f *TestDataFactory) CreateSubscription(customerID string, opts ...SubscriptionOption) *models.Subscription {
	meses := 24
	contrato := "Anual"
	cuota := 65.5
	ingresos := 1572.0

	subscription := &models.Subscription{
		CustomerID:       customerID,
		MesesPermanencia: &meses,
		CanalRegistro:    "Web",
		TipoContrato:     &contrato,
		CuotaMensual:     &cuota,
		IngresosTotales:  &ingresos,
	}

	// 应用选项
	for _, opt := range opts {
		opt(subscription)
	}

	err := f.DB.Create(subscription).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test subscription: %v", err))
	}

	return subscription
}

// WithContrato 设置合同类型
func WithContrato(tipo string) SubscriptionOption {
	return func(s *models.Subscription) {
		s.TipoContrato = &tipo
	}
}

// WithCuota 设置月费
func WithCuota(cuota float64) SubscriptionOption {
	return func(s *models.Subscription) {
		s.CuotaMensual = &cuota
	}
}

// WithTenure 设置在网月数
func WithTenure(months int) SubscriptionOption {
	return func(s *models.Subscription) {
		s.MesesPermanencia = &months
	}
}

// MetricsOption 行为指标选项函数类型
type MetricsOption func(*models.CustomerMetrics)

// CreateMetrics 创建测试行为指标
func (f *TestDataFactory) CreateMetrics(customerID string, opts ...MetricsOption) *models.CustomerMetrics {
	conexiones := 20
	promedio := 1.5
	tickets := 1
	nps := 60
	csat := 4.0
	abandono := false

	metrics := &models.CustomerMetrics{
		CustomerID:           customerID,
		ConeccionesMensuales: &conexiones,
		PromedioConeccion:    &promedio,
		TicketsSoporte:       &tickets,
		ScoreNps:             &nps,
		ScoreCsat:            &csat,
		AbandonoHistorico:    &abandono,
	}

	// 应用选项
	for _, opt := range opts {
		opt(metrics)
	}

	err := f.DB.Create(metrics).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test metrics: %v", err))
	}

	return metrics
}

// WithAbandono 设置历史流失标志
func WithAbandono(abandoned bool) MetricsOption {
	return func(m *models.CustomerMetrics) {
		m.AbandonoHistorico = &abandoned
	}
}

// WithTickets 设置支持工单数
func WithTickets(tickets int) MetricsOption {
	return func(m *models.CustomerMetrics) {
		m.TicketsSoporte = &tickets
	}
}

// PredictionOption 预测记录选项函数类型
type PredictionOption func(*models.Prediction)

// CreatePrediction 创建测试预测记录
func (f *TestDataFactory) CreatePrediction(customerID string, probability float64, opts ...PredictionOption) *models.Prediction {
	prediction := &models.Prediction{
		CustomerID:       customerID,
		ChurnProbability: probability,
		MainFactor:       "precio alto",
		AnalyzedAt:       time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(prediction)
	}

	err := f.DB.Create(prediction).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test prediction: %v", err))
	}

	return prediction
}

// WithAnalyzedAt 设置分析时间
func WithAnalyzedAt(t time.Time) PredictionOption {
	return func(p *models.Prediction) {
		p.AnalyzedAt = t
	}
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}
