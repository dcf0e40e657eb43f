/*
 * @module service/event/publisher
 * @description Kafka事件发布器，向下游消费方推送批量运行摘要与关键预警
 * @architecture 适配器模式 - 封装kafka-go生产者
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 业务事件 -> JSON序列化 -> 按类型为键写入主题
 * @rules 未配置broker时发布为空操作；发布失败只记录日志，不影响业务主流程
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/prediction/orchestrator.go, service/dashboard/alerts_service.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// 事件类型
const (
	TypeRunCompleted  = "prediction.run.completed"
	TypeCriticalAlert = "alert.critical"
)

// Event 下游事件信封
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// Publisher Kafka事件发布器
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher 创建事件发布器，brokers为空时返回空操作实例
func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		return &Publisher{}
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Enabled 是否配置了真实的Kafka连接
func (p *Publisher) Enabled() bool {
	return p.writer != nil
}

// Publish 发布一条事件，未配置时直接返回
func (p *Publisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	if p.writer == nil {
		return nil
	}

	value, err := json.Marshal(Event{
		Type:      eventType,
		Payload:   payload,
		EmittedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(eventType),
		Value: value,
	})
	if err != nil {
		slog.Error("事件发布失败", "type", eventType, "error", err)
		return fmt.Errorf("发布事件失败: %w", err)
	}

	slog.Debug("事件已发布", "type", eventType)
	return nil
}

// Close 关闭底层连接
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
