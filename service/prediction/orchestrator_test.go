/*
 * @module service/prediction/orchestrator_test
 * @description 批量预测编排器单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow stub评分服务 -> 编排执行 -> 运行摘要与落库验证
 * @rules 验证计数恒等式 success+failure+skipped == total、块级失败吸收、运行互斥与读路径兜底
 * @dependencies testing, net/http/httptest, stretchr/testify, churn-service/testutil
 */

package prediction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"churn-service/service/config"
	"churn-service/service/event"
	"churn-service/service/models"
	"churn-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOrchestrator 组装使用内存数据库、进程内缓存与锁的编排器
func newTestOrchestrator(t *testing.T, scoringURL string, batchSize int) (*Orchestrator, *testutil.TestDB, *testutil.TestDataFactory) {
	t.Helper()

	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)

	client := NewScoringClient(&config.Config{
		ScoringServiceURL:     scoringURL,
		ScoringConnectTimeout: 2 * time.Second,
		ScoringReadTimeout:    5 * time.Second,
		ScoringFeatureVersion: "v2",
	})

	orchestrator := NewOrchestrator(
		tdb.DB,
		NewStore(tdb.DB),
		NewMemoryCache(time.Minute),
		client,
		NewLocalRunLock(),
		event.NewPublisher(nil, ""),
		batchSize,
	)

	return orchestrator, tdb, testutil.NewTestDataFactory(tdb.DB)
}

// stubScoringServer 按请求数量返回固定概率的评分响应
func stubScoringServer(t *testing.T, probability float64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			json.NewEncoder(w).Encode(ScoringResult{Probability: probability, MainFactor: "precio alto"})
		case "/predict/batch":
			var features []FeatureVectorV2
			require.NoError(t, json.NewDecoder(r.Body).Decode(&features))
			results := make([]ScoringResult, len(features))
			for i := range results {
				results[i] = ScoringResult{Probability: probability, MainFactor: "precio alto"}
			}
			json.NewEncoder(w).Encode(results)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// TestPredictForCustomer 测试单客户预测成功路径
func TestPredictForCustomer(t *testing.T) {
	server := stubScoringServer(t, 0.82)
	orchestrator, tdb, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer()
	factory.CreateSubscription(customer.ID)

	result, err := orchestrator.PredictForCustomer(context.Background(), customer.ID)
	require.NoError(t, err)

	assert.Equal(t, customer.ID, result.CustomerID)
	assert.Equal(t, 0.82, result.Probability)
	assert.Equal(t, "High", result.RiskLevel)
	assert.Equal(t, "Ofrecer descuento del 20%", result.NextBestAction)
	assert.False(t, result.Synthesized)
	assert.NotNil(t, result.AnalyzedAt)

	// 预测已落库
	var count int64
	tdb.DB.Model(&models.Prediction{}).Where("customer_id = ?", customer.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

// TestPredictForCustomerNotFound 测试不存在的客户
func TestPredictForCustomerNotFound(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, _ := newTestOrchestrator(t, server.URL, 100)

	_, err := orchestrator.PredictForCustomer(context.Background(), "nadie")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

// TestPredictForCustomerIncomplete 测试无订阅客户报数据不完整
func TestPredictForCustomerIncomplete(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer()

	_, err := orchestrator.PredictForCustomer(context.Background(), customer.ID)
	require.Error(t, err)
	assert.True(t, IsIncompleteCustomer(err))
}

// TestPredictForCustomerScoringDown 测试评分服务不可用时错误上抛
func TestPredictForCustomerScoringDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := server.URL
	server.Close()

	orchestrator, tdb, factory := newTestOrchestrator(t, deadURL, 100)

	customer := factory.CreateCustomer()
	factory.CreateSubscription(customer.ID)

	_, err := orchestrator.PredictForCustomer(context.Background(), customer.ID)
	require.Error(t, err)
	assert.True(t, IsScoringUnavailable(err))

	// 失败时不落库
	var count int64
	tdb.DB.Model(&models.Prediction{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

// TestCurrentRiskFromStore 测试当前风险读穿到存储并回填缓存
func TestCurrentRiskFromStore(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer()
	factory.CreatePrediction(customer.ID, 0.75)

	result, err := orchestrator.CurrentRisk(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.75, result.Probability)
	assert.Equal(t, "High", result.RiskLevel)
	assert.False(t, result.Synthesized)

	// 第二次读取命中缓存，结果一致
	again, err := orchestrator.CurrentRisk(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Probability, again.Probability)
}

// TestCurrentRiskSynthesized 测试无预测时走确定性合成器
func TestCurrentRiskSynthesized(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer(testutil.WithBorough("Brooklyn"))

	result, err := orchestrator.CurrentRisk(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.True(t, result.Synthesized)
	assert.Nil(t, result.AnalyzedAt)

	// 读路径确定性：重复读取结果一致
	again, err := orchestrator.CurrentRisk(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Probability, again.Probability)
	assert.Equal(t, result.RiskLevel, again.RiskLevel)

	// 客户不存在时报404语义错误
	_, err = orchestrator.CurrentRisk(context.Background(), "nadie")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

// TestPredictAllSuccess 测试全量预测成功路径与计数恒等式
func TestPredictAllSuccess(t *testing.T) {
	server := stubScoringServer(t, 0.45)
	orchestrator, tdb, factory := newTestOrchestrator(t, server.URL, 2)

	// 5个有订阅的客户 + 1个无订阅的
	for i := 0; i < 5; i++ {
		customer := factory.CreateCustomer()
		factory.CreateSubscription(customer.ID)
	}
	factory.CreateCustomer()

	run, err := orchestrator.PredictAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "success", run.Status)
	assert.Equal(t, 6, run.TotalCustomers)
	assert.Equal(t, 5, run.SuccessCount)
	assert.Equal(t, 0, run.FailureCount)
	assert.Equal(t, 1, run.SkippedCount)
	assert.Equal(t, run.TotalCustomers, run.SuccessCount+run.FailureCount+run.SkippedCount)
	assert.Equal(t, 5, run.MediumCount)
	assert.NotNil(t, run.EndTime)

	// 同一运行的预测共享同一分析时间戳
	var predictions []models.Prediction
	tdb.DB.Where("run_id = ?", run.ID).Find(&predictions)
	require.Len(t, predictions, 5)
	for _, p := range predictions {
		assert.Equal(t, predictions[0].AnalyzedAt.Unix(), p.AnalyzedAt.Unix())
		assert.Equal(t, "Medium", p.RiskLevel)
	}

	// 运行摘要可按ID查询
	fetched, err := orchestrator.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
}

// TestPredictAllPartialFailure 测试块级失败吸收为partial状态
func TestPredictAllPartialFailure(t *testing.T) {
	var batchCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 第二个批次失败，其余成功
		if atomic.AddInt32(&batchCalls, 1) == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var features []FeatureVectorV2
		json.NewDecoder(r.Body).Decode(&features)
		results := make([]ScoringResult, len(features))
		for i := range results {
			results[i] = ScoringResult{Probability: 0.2}
		}
		json.NewEncoder(w).Encode(results)
	}))
	defer server.Close()

	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 2)

	for i := 0; i < 6; i++ {
		customer := factory.CreateCustomer()
		factory.CreateSubscription(customer.ID)
	}

	run, err := orchestrator.PredictAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "partial", run.Status)
	assert.Equal(t, 6, run.TotalCustomers)
	assert.Equal(t, 4, run.SuccessCount)
	assert.Equal(t, 2, run.FailureCount)
	assert.Equal(t, 0, run.SkippedCount)
	assert.Equal(t, run.TotalCustomers, run.SuccessCount+run.FailureCount+run.SkippedCount)
}

// TestPredictAllTotalFailure 测试全部块失败时状态为failed
func TestPredictAllTotalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 2)

	for i := 0; i < 3; i++ {
		customer := factory.CreateCustomer()
		factory.CreateSubscription(customer.ID)
	}

	run, err := orchestrator.PredictAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, 3, run.FailureCount)
	assert.Equal(t, 0, run.SuccessCount)
}

// TestPredictAllEmptyDatabase 测试空库运行为成功且计数全零
func TestPredictAllEmptyDatabase(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, _ := newTestOrchestrator(t, server.URL, 100)

	run, err := orchestrator.PredictAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "success", run.Status)
	assert.Equal(t, 0, run.TotalCustomers)
	assert.Equal(t, 0, run.SuccessCount)
}

// TestPredictAllMutualExclusion 测试运行互斥
func TestPredictAllMutualExclusion(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, _ := newTestOrchestrator(t, server.URL, 100)

	// 模拟另一个运行方持有锁
	ok, err := orchestrator.lock.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = orchestrator.PredictAll(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	// 释放后可以再次运行
	require.NoError(t, orchestrator.lock.Unlock(context.Background()))
	run, err := orchestrator.PredictAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", run.Status)
}

// TestPredictAllAsync 测试异步运行立即返回并可按ID查询终态
func TestPredictAllAsync(t *testing.T) {
	server := stubScoringServer(t, 0.1)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer()
	factory.CreateSubscription(customer.ID)

	run, err := orchestrator.PredictAllAsync(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	// 后台运行最终结束并写回终态
	require.Eventually(t, func() bool {
		fetched, err := orchestrator.GetRun(run.ID)
		return err == nil && fetched.EndTime != nil && fetched.Status == "success"
	}, 5*time.Second, 20*time.Millisecond)

	fetched, err := orchestrator.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.SuccessCount)
}

// TestPredictAllAsyncReturnsSnapshot 测试异步运行返回的摘要是快照，与后台写回互不共享
func TestPredictAllAsyncReturnsSnapshot(t *testing.T) {
	server := stubScoringServer(t, 0.1)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer()
	factory.CreateSubscription(customer.ID)

	run, err := orchestrator.PredictAllAsync(context.Background())
	require.NoError(t, err)

	// 启动时刻的快照
	assert.Equal(t, "running", run.Status)
	assert.Nil(t, run.EndTime)

	require.Eventually(t, func() bool {
		fetched, err := orchestrator.GetRun(run.ID)
		return err == nil && fetched.EndTime != nil && fetched.Status == "success"
	}, 5*time.Second, 20*time.Millisecond)

	// 后台写回终态后，调用方手里的快照保持不变
	assert.Equal(t, "running", run.Status)
	assert.Nil(t, run.EndTime)
	assert.Equal(t, 0, run.SuccessCount)
}

// TestPredictAllDetachedFromCallerCancel 测试同步运行与调用方取消解耦：
// 运行照常完成并释放锁
func TestPredictAllDetachedFromCallerCancel(t *testing.T) {
	server := stubScoringServer(t, 0.6)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer()
	factory.CreateSubscription(customer.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := orchestrator.PredictAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, 1, run.SuccessCount)
	assert.Equal(t, 0, run.FailureCount)
	assert.NotNil(t, run.EndTime)

	// 锁已释放，下一次运行不被互斥拒绝
	again, err := orchestrator.PredictAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", again.Status)
}

// TestOnRunCompletedHooks 测试运行终结回调随每次运行触发
func TestOnRunCompletedHooks(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	customer := factory.CreateCustomer()
	factory.CreateSubscription(customer.ID)

	var calls int32
	orchestrator.OnRunCompleted(func() { atomic.AddInt32(&calls, 1) })

	_, err := orchestrator.PredictAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = orchestrator.PredictAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestGetRunNotFound 测试不存在的运行ID
func TestGetRunNotFound(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, _ := newTestOrchestrator(t, server.URL, 100)

	_, err := orchestrator.GetRun("no-existe")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// TestHistoryRequiresCustomer 测试历史查询要求客户存在
func TestHistoryRequiresCustomer(t *testing.T) {
	server := stubScoringServer(t, 0.5)
	orchestrator, _, factory := newTestOrchestrator(t, server.URL, 100)

	_, err := orchestrator.History(context.Background(), "nadie")
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	customer := factory.CreateCustomer()
	history, err := orchestrator.History(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
