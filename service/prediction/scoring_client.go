/*
 * @module service/prediction/scoring_client
 * @description 外部评分服务客户端，封装 /predict 与 /predict/batch 两个接口
 * @architecture 适配器模式 - 封装外部HTTP评分服务
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 特征向量 -> HTTP POST -> 概率+主要因素；网络失败与协议错误分别归类
 * @rules 连接超时与读取超时独立配置；客户端内部不做重试，重试策略属于编排器
 * @dependencies net/http, churn-service/service/config
 * @refs service/prediction/orchestrator.go
 */

package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"churn-service/service/config"
)

// ScoringResult 评分服务的单条响应
type ScoringResult struct {
	Probability float64 `json:"probability"`
	MainFactor  string  `json:"mainFactor"`
}

// ScoringClient 评分服务客户端，无状态，可并发使用
type ScoringClient struct {
	baseURL        string
	featureVersion string
	httpClient     *http.Client
}

// NewScoringClient 创建评分服务客户端
// 连接超时走Dialer（短），整体超时走http.Client（长，覆盖大批次评分耗时）
func NewScoringClient(cfg *config.Config) *ScoringClient {
	dialer := &net.Dialer{
		Timeout: cfg.ScoringConnectTimeout,
	}

	return &ScoringClient{
		baseURL:        cfg.ScoringServiceURL,
		featureVersion: cfg.ScoringFeatureVersion,
		httpClient: &http.Client{
			Timeout: cfg.ScoringReadTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: cfg.ScoringConnectTimeout,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ScoreOne 对单个特征向量评分
func (c *ScoringClient) ScoreOne(ctx context.Context, features *FeatureVectorV2) (*ScoringResult, error) {
	var result ScoringResult
	if err := c.post(ctx, "/predict", features, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ScoreBatch 对一批特征向量评分，响应与请求按位置一一对应
// 批次大小由调用方决定，客户端不做切分
func (c *ScoringClient) ScoreBatch(ctx context.Context, features []*FeatureVectorV2) ([]ScoringResult, error) {
	var results []ScoringResult
	if err := c.post(ctx, "/predict/batch", features, &results); err != nil {
		return nil, err
	}

	if len(results) != len(features) {
		return nil, &ScoringProtocolError{
			Message: fmt.Sprintf("批量响应数量不匹配: 发送%d条，返回%d条", len(features), len(results)),
		}
	}

	return results, nil
}

func (c *ScoringClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化评分请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Feature-Version", c.featureVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 连接失败、超时等网络层错误都归为服务不可用，可重试
		return &ScoringUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ScoringProtocolError{
			Message: fmt.Sprintf("评分服务返回非预期状态码 %d (%s)", resp.StatusCode, path),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ScoringProtocolError{Message: "解析评分响应失败", Cause: err}
	}

	return nil
}
