/*
 * @module service/dashboard/alerts_service
 * @description 关键预警服务：从客户数据与最新预测中推导阈值型预警条件
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 阈值查询 -> 预警条件组装 -> 可选地推送到事件总线
 * @rules 每条预警携带机器可读类型、插入数量的标题、严重级别与建议动作
 * @dependencies gorm.io/gorm, churn-service/service/event
 * @refs service/dashboard/dashboard_service.go
 */

package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"churn-service/service/event"
	"churn-service/service/models"
	"churn-service/service/prediction"

	"gorm.io/gorm"
)

// CriticalAlert 关键预警条件
type CriticalAlert struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Count       int64  `json:"count"`
	Severity    string `json:"severity"` // critical, medium
	ActionLabel string `json:"action_label"`
	ActionURL   string `json:"action_url"`
}

// AlertsService 关键预警服务
type AlertsService struct {
	db              *gorm.DB
	store           *prediction.Store
	publisher       *event.Publisher
	ticketThreshold int
}

// NewAlertsService 创建关键预警服务
func NewAlertsService(db *gorm.DB, store *prediction.Store, publisher *event.Publisher, ticketThreshold int) *AlertsService {
	if ticketThreshold <= 0 {
		ticketThreshold = 6
	}
	return &AlertsService{
		db:              db,
		store:           store,
		publisher:       publisher,
		ticketThreshold: ticketThreshold,
	}
}

// GetCriticalAlerts 基于当前数据推导关键预警列表
func (s *AlertsService) GetCriticalAlerts(ctx context.Context) ([]CriticalAlert, error) {
	alerts := make([]CriticalAlert, 0, 3)

	// 预警1：支持工单数达到阈值的客户
	var highTickets int64
	err := s.db.Model(&models.Customer{}).
		Joins("JOIN customer_metrics ON customer_metrics.customer_id = customers.id").
		Where("customer_metrics.tickets_soporte >= ?", s.ticketThreshold).
		Count(&highTickets).Error
	if err != nil {
		return nil, fmt.Errorf("统计高工单客户失败: %w", err)
	}
	if highTickets > 0 {
		alerts = append(alerts, CriticalAlert{
			Type:        "high_tickets",
			Title:       fmt.Sprintf("%d 个客户的支持工单达到 %d+", highTickets, s.ticketThreshold),
			Description: "客户不满导致的高流失概率",
			Count:       highTickets,
			Severity:    "critical",
			ActionLabel: "查看名单",
			ActionURL:   "/customers?filter=high-tickets",
		})
	}

	// 预警2：最新预测为中/高风险的月付合同
	monthlyAtRisk, err := s.countMonthlyContractsAtRisk()
	if err != nil {
		return nil, err
	}
	if monthlyAtRisk > 0 {
		alerts = append(alerts, CriticalAlert{
			Type:        "monthly_contracts",
			Title:       fmt.Sprintf("%d 个月付合同处于风险中", monthlyAtRisk),
			Description: "缺少长期约束，流动性高",
			Count:       monthlyAtRisk,
			Severity:    "critical",
			ActionLabel: "创建挽留活动",
			ActionURL:   "/campaigns/create?target=monthly",
		})
	}

	// 预警3：入网0-12个月的新客户（onboarding关键期）
	var onboarding int64
	err = s.db.Model(&models.Subscription{}).
		Where("meses_permanencia BETWEEN ? AND ?", 0, 12).
		Count(&onboarding).Error
	if err != nil {
		return nil, fmt.Errorf("统计onboarding客户失败: %w", err)
	}
	if onboarding > 0 {
		alerts = append(alerts, CriticalAlert{
			Type:        "onboarding",
			Title:       fmt.Sprintf("%d 个客户处于入网关键期（0-12个月）", onboarding),
			Description: "onboarding阶段需要重点关注",
			Count:       onboarding,
			Severity:    "medium",
			ActionLabel: "查看计划",
			ActionURL:   "/programs/onboarding",
		})
	}

	// critical级预警推送到事件总线，发布失败不影响响应
	for _, alert := range alerts {
		if alert.Severity != "critical" {
			continue
		}
		if err := s.publisher.Publish(ctx, event.TypeCriticalAlert, alert); err != nil {
			slog.Warn("发布预警事件失败", "type", alert.Type, "error", err)
		}
	}

	slog.Info("关键预警已生成", "count", len(alerts))
	return alerts, nil
}

// countMonthlyContractsAtRisk 统计最新预测等级为Medium/High的月付合同数量
// 先取全部月付客户ID，再用一次批量查询拿各自最新预测
func (s *AlertsService) countMonthlyContractsAtRisk() (int64, error) {
	var customerIDs []string
	err := s.db.Model(&models.Subscription{}).
		Where("tipo_contrato = ?", "Mensual").
		Pluck("customer_id", &customerIDs).Error
	if err != nil {
		return 0, fmt.Errorf("查询月付合同失败: %w", err)
	}

	latest, err := s.store.LatestByCustomerIDs(customerIDs)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, p := range latest {
		switch prediction.NormalizeRiskLabel(p.RiskLevel) {
		case string(prediction.RiskMedium), string(prediction.RiskHigh):
			count++
		}
	}
	return count, nil
}
