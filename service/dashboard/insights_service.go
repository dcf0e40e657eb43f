/*
 * @module service/dashboard/insights_service
 * @description 经营洞察服务：高优先级挽留名单与合同/工单/分群维度的流失分析
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 关系数据聚合 -> 优先级打分/分组统计 -> 短TTL结果缓存 -> 显式清除入口
 * @rules 优先级名单只含在网客户（历史流失客户属挽回场景，排除）；
 *        只纳入Medium/High风险；优先分 = 流失概率 × 月费，按概率降序
 * @dependencies gorm.io/gorm, churn-service/service/prediction
 * @refs api/controllers/insights_controller.go
 */

package dashboard

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"churn-service/service/models"
	"churn-service/service/prediction"

	"gorm.io/gorm"
)

// PriorityInsight 高优先级挽留名单中的一条客户记录
type PriorityInsight struct {
	CustomerID     string  `json:"customer_id"`
	Ciudad         string  `json:"ciudad,omitempty"`
	Segmento       string  `json:"segmento,omitempty"`
	RiskLevel      string  `json:"risk_level"`
	Probability    float64 `json:"probability"`
	MainFactor     string  `json:"main_factor,omitempty"`
	NextBestAction string  `json:"next_best_action,omitempty"`
	MonthlyRevenue float64 `json:"monthly_revenue"`
	Tenure         int     `json:"tenure"`
	ContractType   string  `json:"contract_type"`
	PriorityScore  float64 `json:"priority_score"` // 概率 × 月费，即预期月损失
}

// ContractAnalysis 按合同类型的流失分析
type ContractAnalysis struct {
	ContractType string  `json:"contract_type"`
	Customers    int64   `json:"customers"`
	ChurnRate    float64 `json:"churn_rate"`
	AvgRevenue   float64 `json:"avg_revenue"`
}

// SupportAnalysis 按工单量区间的流失分析
type SupportAnalysis struct {
	TicketRange string  `json:"ticket_range"`
	Customers   int64   `json:"customers"`
	ChurnRate   float64 `json:"churn_rate"`
}

// SegmentAnalysis 按客户分群的流失分析
type SegmentAnalysis struct {
	Segment    string  `json:"segment"`
	Customers  int64   `json:"customers"`
	AvgRevenue float64 `json:"avg_revenue"`
	ChurnRate  float64 `json:"churn_rate"`
}

// InsightsService 经营洞察服务
type InsightsService struct {
	db    *gorm.DB
	store *prediction.Store

	mu     sync.RWMutex
	cached map[string]cachedResult
	ttl    time.Duration
}

// NewInsightsService 创建经营洞察服务
func NewInsightsService(db *gorm.DB, store *prediction.Store, cacheTTL time.Duration) *InsightsService {
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &InsightsService{
		db:     db,
		store:  store,
		cached: make(map[string]cachedResult),
		ttl:    cacheTTL,
	}
}

// GetPriorityInsights 生成高优先级挽留名单
// 只看在网客户的最新预测，纳入Medium/High风险，按概率降序取前limit条
func (s *InsightsService) GetPriorityInsights(limit int) ([]PriorityInsight, error) {
	if limit <= 0 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("insights:priority:%d", limit)
	if cached, ok := s.getCached(cacheKey); ok {
		return cached.([]PriorityInsight), nil
	}

	// 历史流失客户属于挽回场景，不进挽留名单
	var customers []models.Customer
	err := s.db.Preload("Subscription").
		Joins("LEFT JOIN customer_metrics ON customer_metrics.customer_id = customers.id").
		Where("customer_metrics.abandono_historico IS NULL OR customer_metrics.abandono_historico = ?", false).
		Find(&customers).Error
	if err != nil {
		return nil, fmt.Errorf("查询在网客户失败: %w", err)
	}

	ids := make([]string, 0, len(customers))
	for i := range customers {
		ids = append(ids, customers[i].ID)
	}

	latest, err := s.store.LatestByCustomerIDs(ids)
	if err != nil {
		return nil, err
	}

	insights := make([]PriorityInsight, 0, len(customers))
	for i := range customers {
		pred := latest[customers[i].ID]
		if pred == nil {
			continue
		}
		level := prediction.NormalizeRiskLabel(pred.RiskLevel)
		if level != string(prediction.RiskMedium) && level != string(prediction.RiskHigh) {
			continue
		}
		insights = append(insights, buildPriorityInsight(&customers[i], pred, level))
	}

	sort.Slice(insights, func(a, b int) bool {
		return insights[a].Probability > insights[b].Probability
	})
	if len(insights) > limit {
		insights = insights[:limit]
	}

	s.putCached(cacheKey, insights)
	return insights, nil
}

// GetContractAnalysis 按合同类型统计客户数、流失率与平均月费
func (s *InsightsService) GetContractAnalysis() ([]ContractAnalysis, error) {
	if cached, ok := s.getCached("insights:contracts"); ok {
		return cached.([]ContractAnalysis), nil
	}

	var results []ContractAnalysis
	err := s.db.Model(&models.Subscription{}).
		Select("COALESCE(subscriptions.tipo_contrato, 'N/A') AS contract_type, " +
			"COUNT(*) AS customers, " +
			"AVG(CASE WHEN customer_metrics.abandono_historico THEN 100.0 ELSE 0.0 END) AS churn_rate, " +
			"COALESCE(AVG(subscriptions.cuota_mensual), 0) AS avg_revenue").
		Joins("LEFT JOIN customer_metrics ON customer_metrics.customer_id = subscriptions.customer_id").
		Group("COALESCE(subscriptions.tipo_contrato, 'N/A')").
		Order("customers DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("合同维度聚合失败: %w", err)
	}

	for i := range results {
		results[i].ChurnRate = round2(results[i].ChurnRate)
		results[i].AvgRevenue = round2(results[i].AvgRevenue)
	}

	s.putCached("insights:contracts", results)
	return results, nil
}

// GetSupportAnalysis 按工单量区间（0-2、3-5、6+）统计客户数与流失率
func (s *InsightsService) GetSupportAnalysis() ([]SupportAnalysis, error) {
	if cached, ok := s.getCached("insights:support"); ok {
		return cached.([]SupportAnalysis), nil
	}

	var results []SupportAnalysis
	err := s.db.Model(&models.Customer{}).
		Select("CASE WHEN COALESCE(customer_metrics.tickets_soporte, 0) <= 2 THEN '0-2' " +
			"WHEN customer_metrics.tickets_soporte <= 5 THEN '3-5' " +
			"ELSE '6+' END AS ticket_range, " +
			"COUNT(*) AS customers, " +
			"AVG(CASE WHEN customer_metrics.abandono_historico THEN 100.0 ELSE 0.0 END) AS churn_rate").
		Joins("LEFT JOIN customer_metrics ON customer_metrics.customer_id = customers.id").
		Group("ticket_range").
		Order("ticket_range").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("工单维度聚合失败: %w", err)
	}

	for i := range results {
		results[i].ChurnRate = round2(results[i].ChurnRate)
	}

	s.putCached("insights:support", results)
	return results, nil
}

// GetSegmentAnalysis 按客户分群统计客户数、平均月费与流失率
func (s *InsightsService) GetSegmentAnalysis() ([]SegmentAnalysis, error) {
	if cached, ok := s.getCached("insights:segments"); ok {
		return cached.([]SegmentAnalysis), nil
	}

	var results []SegmentAnalysis
	err := s.db.Model(&models.Customer{}).
		Select("COALESCE(NULLIF(customers.segmento, ''), 'N/A') AS segment, " +
			"COUNT(*) AS customers, " +
			"COALESCE(AVG(subscriptions.cuota_mensual), 0) AS avg_revenue, " +
			"AVG(CASE WHEN customer_metrics.abandono_historico THEN 100.0 ELSE 0.0 END) AS churn_rate").
		Joins("LEFT JOIN subscriptions ON subscriptions.customer_id = customers.id").
		Joins("LEFT JOIN customer_metrics ON customer_metrics.customer_id = customers.id").
		Group("COALESCE(NULLIF(customers.segmento, ''), 'N/A')").
		Order("customers DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("分群维度聚合失败: %w", err)
	}

	for i := range results {
		results[i].ChurnRate = round2(results[i].ChurnRate)
		results[i].AvgRevenue = round2(results[i].AvgRevenue)
	}

	s.putCached("insights:segments", results)
	return results, nil
}

// ClearCache 显式清除全部洞察结果缓存
func (s *InsightsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = make(map[string]cachedResult)
	slog.Info("经营洞察缓存已清除")
}

func (s *InsightsService) getCached(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cached[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (s *InsightsService) putCached(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[key] = cachedResult{value: value, expiresAt: time.Now().Add(s.ttl)}
}

// buildPriorityInsight 把客户与其最新预测装配为名单记录
func buildPriorityInsight(customer *models.Customer, pred *models.Prediction, level string) PriorityInsight {
	insight := PriorityInsight{
		CustomerID:     customer.ID,
		Ciudad:         customer.Ciudad,
		Segmento:       customer.Segmento,
		RiskLevel:      level,
		Probability:    prediction.ClampProbability(pred.ChurnProbability),
		MainFactor:     pred.MainFactor,
		NextBestAction: prediction.NextBestAction(pred.MainFactor),
		ContractType:   "N/A",
	}

	if sub := customer.Subscription; sub != nil {
		if sub.CuotaMensual != nil {
			insight.MonthlyRevenue = *sub.CuotaMensual
		}
		if sub.MesesPermanencia != nil {
			insight.Tenure = *sub.MesesPermanencia
		}
		if sub.TipoContrato != nil && strings.TrimSpace(*sub.TipoContrato) != "" {
			insight.ContractType = *sub.TipoContrato
		}
	}

	insight.PriorityScore = round2(insight.Probability * insight.MonthlyRevenue)
	return insight
}

// round2 保留2位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
