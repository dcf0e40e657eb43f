/*
 * @module service/dashboard/dashboard_service
 * @description 仪表盘聚合服务：人群级统计与地理风险热力图，读取即算，结果可短暂缓存并显式清除
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 关系数据聚合 -> 统计/热力图 -> 短TTL结果缓存 -> 显式清除入口
 * @rules 读取幂等可重复；单个客户映射失败只跳过该客户，不让整个响应失败；
 *        无坐标的客户从热力图完全排除
 * @dependencies gorm.io/gorm, churn-service/service/prediction
 * @refs api/controllers/dashboard_controller.go
 */

package dashboard

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"churn-service/service/models"
	"churn-service/service/prediction"

	"gorm.io/gorm"
)

// DashboardStats 仪表盘总览统计
type DashboardStats struct {
	TotalCustomers      int64   `json:"total_customers"`
	AbandonedCustomers  int64   `json:"abandoned_customers"`
	ChurnRate           float64 `json:"churn_rate"` // 百分比，保留2位小数
	TotalMonthlyRevenue float64 `json:"total_monthly_revenue"`
	ChurnRevenue        float64 `json:"churn_revenue"`
	AvgSatisfaction     float64 `json:"avg_satisfaction"` // NPS均值
}

// HeatmapPoint 热力图点位，每个有坐标的客户一条
type HeatmapPoint struct {
	CustomerID       string  `json:"customer_id"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	ChurnProbability float64 `json:"churn_probability"`
	RiskLevel        string  `json:"risk_level"`
	Synthesized      bool    `json:"synthesized"`

	// 描述性元数据
	Segmento     string  `json:"segmento,omitempty"`
	TipoContrato string  `json:"tipo_contrato"`
	CargoMensual float64 `json:"cargo_mensual"`
	Antiguedad   int     `json:"antiguedad"`
	Ciudad       string  `json:"ciudad,omitempty"`
	Borough      string  `json:"borough,omitempty"`
}

type cachedResult struct {
	value     interface{}
	expiresAt time.Time
}

// Service 仪表盘聚合服务
type Service struct {
	db    *gorm.DB
	store *prediction.Store

	// 聚合结果的短TTL缓存，读取必须幂等所以可安全重复
	mu      sync.RWMutex
	cached  map[string]cachedResult
	ttl     time.Duration
}

// NewService 创建仪表盘聚合服务
func NewService(db *gorm.DB, store *prediction.Store, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Service{
		db:     db,
		store:  store,
		cached: make(map[string]cachedResult),
		ttl:    cacheTTL,
	}
}

// GetDashboardStats 计算仪表盘总览统计，空库返回全零
func (s *Service) GetDashboardStats() (*DashboardStats, error) {
	if cached, ok := s.getCached("dashboard_stats"); ok {
		return cached.(*DashboardStats), nil
	}

	stats := &DashboardStats{}

	if err := s.db.Model(&models.Customer{}).Count(&stats.TotalCustomers).Error; err != nil {
		return nil, fmt.Errorf("统计客户总数失败: %w", err)
	}

	if stats.TotalCustomers == 0 {
		slog.Warn("数据库中没有客户，返回空统计")
		return stats, nil
	}

	err := s.db.Model(&models.Customer{}).
		Joins("JOIN customer_metrics ON customer_metrics.customer_id = customers.id").
		Where("customer_metrics.abandono_historico = ?", true).
		Count(&stats.AbandonedCustomers).Error
	if err != nil {
		return nil, fmt.Errorf("统计历史流失客户失败: %w", err)
	}

	stats.ChurnRate = churnRate(stats.AbandonedCustomers, stats.TotalCustomers)

	row := s.db.Model(&models.Subscription{}).
		Select("COALESCE(SUM(cuota_mensual), 0)").
		Row()
	if err := row.Scan(&stats.TotalMonthlyRevenue); err != nil {
		return nil, fmt.Errorf("统计月度总收入失败: %w", err)
	}

	row = s.db.Model(&models.Subscription{}).
		Select("COALESCE(SUM(subscriptions.ingresos_totales), 0)").
		Joins("JOIN customer_metrics ON customer_metrics.customer_id = subscriptions.customer_id").
		Where("customer_metrics.abandono_historico = ?", true).
		Row()
	if err := row.Scan(&stats.ChurnRevenue); err != nil {
		return nil, fmt.Errorf("统计流失客户收入失败: %w", err)
	}

	row = s.db.Model(&models.CustomerMetrics{}).
		Select("COALESCE(AVG(score_nps), 0)").
		Where("score_nps IS NOT NULL").
		Row()
	if err := row.Scan(&stats.AvgSatisfaction); err != nil {
		return nil, fmt.Errorf("统计平均满意度失败: %w", err)
	}

	s.putCached("dashboard_stats", stats)
	return stats, nil
}

// GetHeatmapData 生成地理风险热力图点位，可按行政区过滤
// 没有真实预测的客户使用确定性合成风险；无坐标的客户完全排除
func (s *Service) GetHeatmapData(borough string) ([]HeatmapPoint, error) {
	cacheKey := "heatmap:" + strings.ToLower(borough)
	if cached, ok := s.getCached(cacheKey); ok {
		return cached.([]HeatmapPoint), nil
	}

	query := s.db.Preload("Subscription").
		Where("latitud IS NOT NULL AND longitud IS NOT NULL")
	if borough != "" {
		query = query.Where("LOWER(borough) = ?", strings.ToLower(borough))
	}

	var customers []models.Customer
	if err := query.Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("查询带坐标客户失败: %w", err)
	}

	ids := make([]string, 0, len(customers))
	for i := range customers {
		ids = append(ids, customers[i].ID)
	}

	latest, err := s.store.LatestByCustomerIDs(ids)
	if err != nil {
		return nil, err
	}

	points := make([]HeatmapPoint, 0, len(customers))
	for i := range customers {
		point, err := mapToHeatmapPoint(&customers[i], latest[customers[i].ID])
		if err != nil {
			// 单个客户映射失败只跳过，不影响其余点位
			slog.Error("热力图点位映射失败，跳过该客户", "customer_id", customers[i].ID, "error", err)
			continue
		}
		points = append(points, *point)
	}

	s.putCached(cacheKey, points)
	return points, nil
}

// ClearCache 显式清除全部聚合结果缓存
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = make(map[string]cachedResult)
	slog.Info("仪表盘聚合缓存已清除")
}

func (s *Service) getCached(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cached[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (s *Service) putCached(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[key] = cachedResult{value: value, expiresAt: time.Now().Add(s.ttl)}
}

// mapToHeatmapPoint 把客户与其最新预测（可能为nil）映射为热力图点位
func mapToHeatmapPoint(customer *models.Customer, latest *models.Prediction) (*HeatmapPoint, error) {
	if customer.Latitud == nil || customer.Longitud == nil {
		return nil, fmt.Errorf("客户 %s 缺少坐标", customer.ID)
	}

	point := &HeatmapPoint{
		CustomerID: customer.ID,
		Latitude:   *customer.Latitud,
		Longitude:  *customer.Longitud,
		Segmento:   customer.Segmento,
		Ciudad:     customer.Ciudad,
		Borough:    customer.Borough,
	}

	if sub := customer.Subscription; sub != nil {
		if sub.TipoContrato != nil {
			point.TipoContrato = *sub.TipoContrato
		} else {
			point.TipoContrato = "N/A"
		}
		if sub.CuotaMensual != nil {
			point.CargoMensual = *sub.CuotaMensual
		}
		if sub.MesesPermanencia != nil {
			point.Antiguedad = *sub.MesesPermanencia
		}
	} else {
		point.TipoContrato = "N/A"
	}

	if latest != nil {
		point.ChurnProbability = prediction.ClampProbability(latest.ChurnProbability)
		point.RiskLevel = prediction.NormalizeRiskLabel(latest.RiskLevel)
		return point, nil
	}

	synthesized := prediction.SynthesizeRisk(customer.ID, customer.Borough)
	point.ChurnProbability = synthesized.Probability
	point.RiskLevel = string(synthesized.RiskLevel)
	point.Synthesized = true
	return point, nil
}

// churnRate 流失率百分比，保留2位小数，空人群为0
func churnRate(abandoned, total int64) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(abandoned) / float64(total) * 100
	return math.Round(rate*100) / 100
}
