/*
 * @module service/prediction/store
 * @description 预测记录存储层：仅追加写入，支持按客户查询历史和按ID集合批量查询最新预测
 * @architecture 数据访问层
 * @documentReference dev_docs/model.md
 * @stateFlow 批量写入单事务提交 -> 按客户ID+时间索引读取
 * @rules 预测记录不更新不删除；"最新预测"为同一客户中analyzed_at最大的一行，时间并列取ID最大
 * @dependencies gorm.io/gorm, github.com/lib/pq
 * @refs service/models/prediction.go
 */

package prediction

import (
	"churn-service/service/models"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Store 预测记录存储
type Store struct {
	db *gorm.DB
}

// NewStore 创建预测记录存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Insert 写入单条预测记录
func (s *Store) Insert(p *models.Prediction) error {
	if err := s.db.Create(p).Error; err != nil {
		return fmt.Errorf("写入预测记录失败: %w", err)
	}
	return nil
}

// InsertBatch 单事务批量写入，一个批次要么全部提交要么整体失败
func (s *Store) InsertBatch(predictions []*models.Prediction) error {
	if len(predictions) == 0 {
		return nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(predictions, 500).Error
	})
	if err != nil {
		return fmt.Errorf("批量写入预测记录失败: %w", err)
	}
	return nil
}

// FindByCustomer 查询客户的全部预测历史，最新在前
func (s *Store) FindByCustomer(customerID string) ([]models.Prediction, error) {
	var predictions []models.Prediction
	err := s.db.Where("customer_id = ?", customerID).
		Order("analyzed_at DESC, id DESC").
		Find(&predictions).Error
	if err != nil {
		return nil, fmt.Errorf("查询预测历史失败: %w", err)
	}
	return predictions, nil
}

// LatestByCustomer 查询客户的最新预测，没有记录时返回 (nil, nil)
func (s *Store) LatestByCustomer(customerID string) (*models.Prediction, error) {
	var p models.Prediction
	err := s.db.Where("customer_id = ?", customerID).
		Order("analyzed_at DESC, id DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询最新预测失败: %w", err)
	}
	return &p, nil
}

// LatestByCustomerIDs 一次查询拿到一组客户各自的最新预测
// 面向仪表盘规模的读取，必须避免按客户逐条查询
func (s *Store) LatestByCustomerIDs(customerIDs []string) (map[string]*models.Prediction, error) {
	result := make(map[string]*models.Prediction, len(customerIDs))
	if len(customerIDs) == 0 {
		return result, nil
	}

	sub := s.db.Model(&models.Prediction{}).
		Select("customer_id, MAX(analyzed_at) AS max_analyzed_at").
		Group("customer_id")

	// PostgreSQL用数组绑定避免超长IN列表，其他方言（测试用sqlite）退回IN
	if s.db.Dialector.Name() == "postgres" {
		sub = sub.Where("customer_id = ANY(?)", pq.Array(customerIDs))
	} else {
		sub = sub.Where("customer_id IN ?", customerIDs)
	}

	var rows []models.Prediction
	err := s.db.Model(&models.Prediction{}).
		Joins("JOIN (?) latest ON ai_predictions.customer_id = latest.customer_id AND ai_predictions.analyzed_at = latest.max_analyzed_at", sub).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("批量查询最新预测失败: %w", err)
	}

	// 同一时间戳写入多条时取ID最大的一条，保证"最新预测"唯一
	for i := range rows {
		row := rows[i]
		if existing, ok := result[row.CustomerID]; !ok || row.ID > existing.ID {
			result[row.CustomerID] = &rows[i]
		}
	}

	return result, nil
}
