/*
 * @module service/prediction/errors
 * @description 预测流水线的错误类型定义，区分数据不完整、评分服务不可用与协议错误
 * @architecture 分层架构 - 错误分类
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 单客户路径向调用方透传错误类型；批量路径吸收错误计入运行摘要
 * @rules 可重试（服务不可用）与不可重试（协议错误）必须可区分
 * @dependencies errors
 * @refs api/controllers/prediction_controller.go
 */

package prediction

import (
	"errors"
	"fmt"
)

// ErrRunInProgress 已有全量预测运行在进行中
var ErrRunInProgress = errors.New("已有批量预测任务在运行中")

// ErrCustomerNotFound 客户不存在
var ErrCustomerNotFound = errors.New("客户不存在")

// IncompleteCustomerError 客户缺少必要关联（无订阅），跳过并单独计数，不是致命错误
type IncompleteCustomerError struct {
	CustomerID string
}

func (e *IncompleteCustomerError) Error() string {
	return fmt.Sprintf("客户 %s 没有关联订阅，无法构建特征向量", e.CustomerID)
}

// ScoringUnavailableError 评分服务网络不可达或超时，可重试
type ScoringUnavailableError struct {
	Cause error
}

func (e *ScoringUnavailableError) Error() string {
	return fmt.Sprintf("评分服务不可用: %v", e.Cause)
}

func (e *ScoringUnavailableError) Unwrap() error {
	return e.Cause
}

// ScoringProtocolError 评分服务返回了非预期的响应（非2xx或格式错误），不可重试
type ScoringProtocolError struct {
	Message string
	Cause   error
}

func (e *ScoringProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("评分服务协议错误: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("评分服务协议错误: %s", e.Message)
}

func (e *ScoringProtocolError) Unwrap() error {
	return e.Cause
}

// IsIncompleteCustomer 判断是否为数据不完整错误
func IsIncompleteCustomer(err error) bool {
	var target *IncompleteCustomerError
	return errors.As(err, &target)
}

// IsScoringUnavailable 判断是否为评分服务不可用错误
func IsScoringUnavailable(err error) bool {
	var target *ScoringUnavailableError
	return errors.As(err, &target)
}

// IsScoringProtocol 判断是否为评分服务协议错误
func IsScoringProtocol(err error) bool {
	var target *ScoringProtocolError
	return errors.As(err, &target)
}
