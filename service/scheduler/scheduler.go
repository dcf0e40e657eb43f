/*
 * @module service/scheduler
 * @description 定时任务调度服务，按cron表达式周期性触发全量流失预测
 * @architecture 分层架构 - 调度层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 启动时注册cron任务 -> 到点触发全量预测 -> 运行锁保证不重入
 * @rules 上一次运行未结束时本次触发直接跳过（由运行锁拒绝），不排队
 * @dependencies github.com/robfig/cron/v3
 * @refs service/prediction/orchestrator.go
 */

package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"churn-service/service/prediction"

	"github.com/robfig/cron/v3"
)

// SchedulerService 定时预测调度服务
type SchedulerService struct {
	cron         *cron.Cron
	orchestrator *prediction.Orchestrator
}

// NewSchedulerService 创建调度服务
func NewSchedulerService(orchestrator *prediction.Orchestrator) *SchedulerService {
	return &SchedulerService{
		cron:         cron.New(),
		orchestrator: orchestrator,
	}
}

// Start 注册并启动定时全量预测任务
func (s *SchedulerService) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		run, err := s.orchestrator.PredictAll(context.Background())
		if errors.Is(err, prediction.ErrRunInProgress) {
			slog.Warn("定时全量预测跳过：已有运行在进行中")
			return
		}
		if err != nil {
			slog.Error("定时全量预测启动失败", "error", err)
			return
		}
		slog.Info("定时全量预测完成",
			"run_id", run.ID,
			"status", run.Status,
			"success", run.SuccessCount,
			"failure", run.FailureCount)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	slog.Info("定时全量预测已启用", "cron", spec)
	return nil
}

// Stop 停止调度，等待运行中的任务结束
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
