/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建表结构，以及显式的全量重置操作
 * @architecture 数据访问层 - 迁移管理
 * @documentReference dev_docs/model.md
 * @stateFlow 应用启动时执行数据库迁移；全量重置仅由显式API触发
 * @rules 预测表仅追加；全量重置按依赖顺序删除（预测 -> 指标/订阅 -> 客户）
 * @dependencies churn-service/service/models, gorm.io/gorm
 * @refs dev_docs/backend_requirements.md
 */

package database

import (
	"churn-service/service/models"
	"log"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 客户聚合相关表
	err := db.AutoMigrate(
		&models.Customer{},
		&models.Subscription{},
		&models.CustomerMetrics{},
	)
	if err != nil {
		return err
	}

	// 预测相关表
	err = db.AutoMigrate(
		&models.Prediction{},
		&models.PredictionRun{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// ResetStats 全量重置的删除统计
type ResetStats struct {
	Predictions   int64 `json:"predictions"`
	Runs          int64 `json:"runs"`
	Metrics       int64 `json:"metrics"`
	Subscriptions int64 `json:"subscriptions"`
	Customers     int64 `json:"customers"`
}

// ResetAll 清空全部业务表，唯一的批量删除入口
// 按外键依赖顺序删除：预测 -> 运行记录 -> 指标 -> 订阅 -> 客户
func ResetAll(db *gorm.DB) (*ResetStats, error) {
	stats := &ResetStats{}

	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if stats.Predictions, err = deleteAll(tx, &models.Prediction{}); err != nil {
			return err
		}
		if stats.Runs, err = deleteAll(tx, &models.PredictionRun{}); err != nil {
			return err
		}
		if stats.Metrics, err = deleteAll(tx, &models.CustomerMetrics{}); err != nil {
			return err
		}
		if stats.Subscriptions, err = deleteAll(tx, &models.Subscription{}); err != nil {
			return err
		}
		if stats.Customers, err = deleteAll(tx, &models.Customer{}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("数据库全量重置完成: 预测=%d 运行=%d 指标=%d 订阅=%d 客户=%d",
		stats.Predictions, stats.Runs, stats.Metrics, stats.Subscriptions, stats.Customers)
	return stats, nil
}

func deleteAll(tx *gorm.DB, model interface{}) (int64, error) {
	result := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model)
	return result.RowsAffected, result.Error
}
