/*
 * @module service/models/prediction
 * @description 流失预测相关模型，包含预测记录（仅追加）与批量预测运行摘要
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/model.md
 * @stateFlow 评分结果写入 -> 风险等级在持久化前由概率推导 -> 历史仅追加，不更新不删除
 * @rules 风险等级永远由概率按固定阈值推导，不接受外部直接赋值；概率写入前裁剪到[0,1]
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/prediction/classifier.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Prediction AI预测记录，按客户ID回引用客户，历史仅追加
type Prediction struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CustomerID       string    `json:"customer_id" gorm:"not null;type:varchar(36);index:idx_predictions_customer_time,priority:1"`
	ChurnProbability float64   `json:"churn_probability" gorm:"not null"`
	RiskLevel        string    `json:"risk_level" gorm:"size:20"` // Low, Medium, High，持久化前自动推导
	MainFactor       string    `json:"main_factor" gorm:"size:255"`
	AnalyzedAt       time.Time `json:"analyzed_at" gorm:"not null;index:idx_predictions_customer_time,priority:2"`
	RunID            string    `json:"run_id,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt        time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName 指定表名，保持与历史数据兼容
func (Prediction) TableName() string {
	return "ai_predictions"
}

// BeforeCreate GORM钩子，裁剪概率并推导风险等级
// 与评分服务返回什么无关，等级只认概率和固定阈值
func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ChurnProbability < 0 {
		p.ChurnProbability = 0
	} else if p.ChurnProbability > 1 {
		p.ChurnProbability = 1
	}

	switch {
	case p.ChurnProbability < 0.30:
		p.RiskLevel = "Low"
	case p.ChurnProbability < 0.70:
		p.RiskLevel = "Medium"
	default:
		p.RiskLevel = "High"
	}

	if p.AnalyzedAt.IsZero() {
		p.AnalyzedAt = time.Now()
	}

	return nil
}

// PredictionRun 全量批量预测的运行摘要
type PredictionRun struct {
	ID     string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Status string `json:"status" gorm:"not null;size:20;default:'running'"` // running, success, partial, failed

	TotalCustomers int `json:"total_customers" gorm:"default:0"`
	SuccessCount   int `json:"success_count" gorm:"default:0"`
	FailureCount   int `json:"failure_count" gorm:"default:0"`
	SkippedCount   int `json:"skipped_count" gorm:"default:0"` // 无订阅，未参与评分

	// 按风险等级统计
	LowCount    int `json:"low_count" gorm:"default:0"`
	MediumCount int `json:"medium_count" gorm:"default:0"`
	HighCount   int `json:"high_count" gorm:"default:0"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Message   string     `json:"message" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (r *PredictionRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
