/*
 * @module service/prediction/orchestrator
 * @description 批量预测编排器：驱动单客户与全量人群的评分流程，分块调用评分服务并把结果对账进存储
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 取客户 -> 特征投影 -> 分块评分 -> 单事务落库 -> 失效缓存 -> 运行摘要
 * @rules 块内失败整块计失败并继续后续块；全量运行永不向上抛错，始终返回摘要；
 *        缓存整体失效必须发生在所有块提交之后；同一运行的预测共享同一分析时间戳
 * @dependencies gorm.io/gorm, github.com/prometheus/client_golang
 * @refs service/prediction/scoring_client.go, service/prediction/store.go
 */

package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"churn-service/service/event"
	"churn-service/service/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("批量预测运行记录不存在")

var (
	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "churn_predictions_total",
		Help: "按结果分类的预测处理总数",
	}, []string{"result"}) // success, failure, skipped

	runDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "churn_prediction_run_duration_seconds",
		Help: "最近一次全量预测运行的耗时（秒）",
	})
)

// PredictionResponse 单客户预测/当前风险的响应
type PredictionResponse struct {
	CustomerID     string     `json:"customer_id"`
	Probability    float64    `json:"probability"`
	RiskLevel      string     `json:"risk_level"`
	MainFactor     string     `json:"main_factor,omitempty"`
	NextBestAction string     `json:"next_best_action,omitempty"`
	Synthesized    bool       `json:"synthesized"`
	AnalyzedAt     *time.Time `json:"analyzed_at,omitempty"`
}

// Orchestrator 批量预测编排器
type Orchestrator struct {
	db        *gorm.DB
	store     *Store
	cache     Cache
	client    *ScoringClient
	lock      RunLock
	publisher *event.Publisher
	batchSize int

	// 运行终结后逐个调用，用于联动失效下游聚合缓存；注册须在启动任何运行之前完成
	runCompletedHooks []func()
}

// NewOrchestrator 创建批量预测编排器
func NewOrchestrator(db *gorm.DB, store *Store, cache Cache, client *ScoringClient, lock RunLock, publisher *event.Publisher, batchSize int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Orchestrator{
		db:        db,
		store:     store,
		cache:     cache,
		client:    client,
		lock:      lock,
		publisher: publisher,
		batchSize: batchSize,
	}
}

// OnRunCompleted 注册全量运行终结后的回调
// 预测缓存整体失效后下游聚合结果同样过期，回调让依赖方随运行一起清除
func (o *Orchestrator) OnRunCompleted(hook func()) {
	o.runCompletedHooks = append(o.runCompletedHooks, hook)
}

// PredictForCustomer 单客户预测：投影 -> 评分 -> 落库 -> 失效缓存
// 评分服务不可用时错误原样上抛，由调用方映射为可重试的503
func (o *Orchestrator) PredictForCustomer(ctx context.Context, customerID string) (*PredictionResponse, error) {
	customer, err := o.loadCustomer(customerID)
	if err != nil {
		return nil, err
	}

	features, err := ProjectFeatures(customer)
	if err != nil {
		return nil, err
	}

	result, err := o.client.ScoreOne(ctx, features)
	if err != nil {
		predictionsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	pred := &models.Prediction{
		CustomerID:       customerID,
		ChurnProbability: ClampProbability(result.Probability),
		MainFactor:       result.MainFactor,
		AnalyzedAt:       time.Now(),
	}
	if err := o.store.Insert(pred); err != nil {
		return nil, err
	}

	if err := o.cache.Invalidate(ctx, customerID); err != nil {
		slog.Warn("失效预测缓存失败", "customer_id", customerID, "error", err)
	}

	predictionsTotal.WithLabelValues("success").Inc()
	return responseFromPrediction(pred), nil
}

// CurrentRisk 读取客户当前风险：缓存 -> 存储 -> 合成器兜底
// 读路径永不依赖外部评分服务
func (o *Orchestrator) CurrentRisk(ctx context.Context, customerID string) (*PredictionResponse, error) {
	if cached, hit, err := o.cache.Get(ctx, customerID); err == nil && hit {
		return responseFromPrediction(cached), nil
	} else if err != nil {
		slog.Warn("读取预测缓存失败，读穿到存储", "customer_id", customerID, "error", err)
	}

	latest, err := o.store.LatestByCustomer(customerID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		if err := o.cache.Put(ctx, customerID, latest); err != nil {
			slog.Warn("写入预测缓存失败", "customer_id", customerID, "error", err)
		}
		return responseFromPrediction(latest), nil
	}

	// 没有真实预测：确认客户存在后走确定性合成器
	customer, err := o.loadCustomer(customerID)
	if err != nil {
		return nil, err
	}

	synthesized := SynthesizeRisk(customer.ID, customer.Borough)
	return &PredictionResponse{
		CustomerID:  customer.ID,
		Probability: synthesized.Probability,
		RiskLevel:   string(synthesized.RiskLevel),
		Synthesized: true,
	}, nil
}

// History 查询客户预测历史，最新在前
func (o *Orchestrator) History(ctx context.Context, customerID string) ([]models.Prediction, error) {
	if _, err := o.loadCustomer(customerID); err != nil {
		return nil, err
	}
	return o.store.FindByCustomer(customerID)
}

// PredictAll 同步执行全量预测，返回运行摘要
// 除互斥冲突与运行记录创建失败外不返回错误，块级失败吸收进摘要
// 运行一旦开始就与调用方生命周期解耦：调用方断开不取消剩余块，锁释放也不受影响
func (o *Orchestrator) PredictAll(ctx context.Context) (*models.PredictionRun, error) {
	run, err := o.beginRun(ctx)
	if err != nil {
		return nil, err
	}
	return o.executeRun(context.WithoutCancel(ctx), run), nil
}

// PredictAllAsync 异步执行全量预测，立即返回含运行ID的摘要快照，结果可随后按ID查询
// 可变的运行记录归后台goroutine独占，返回给调用方的是启动时刻的副本
func (o *Orchestrator) PredictAllAsync(ctx context.Context) (*models.PredictionRun, error) {
	run, err := o.beginRun(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := *run

	go func() {
		// 触发请求结束后运行继续，不受调用方取消影响
		o.executeRun(context.Background(), run)
	}()

	return &snapshot, nil
}

// GetRun 按ID查询运行摘要
func (o *Orchestrator) GetRun(runID string) (*models.PredictionRun, error) {
	var run models.PredictionRun
	err := o.db.First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	return &run, nil
}

// beginRun 获取运行锁并创建运行记录
func (o *Orchestrator) beginRun(ctx context.Context) (*models.PredictionRun, error) {
	ok, err := o.lock.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取运行锁失败: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	run := &models.PredictionRun{
		Status:    "running",
		StartTime: time.Now(),
	}
	if err := o.db.Create(run).Error; err != nil {
		_ = o.lock.Unlock(ctx)
		return nil, fmt.Errorf("创建运行记录失败: %w", err)
	}
	return run, nil
}

// executeRun 执行全量预测主流程，永不panic、永不抛错
func (o *Orchestrator) executeRun(ctx context.Context, run *models.PredictionRun) *models.PredictionRun {
	defer func() {
		if err := o.lock.Unlock(ctx); err != nil {
			slog.Warn("释放运行锁失败", "run_id", run.ID, "error", err)
		}
	}()

	slog.Info("开始全量流失预测", "run_id", run.ID, "batch_size", o.batchSize)

	var customers []models.Customer
	if err := o.db.Preload("Subscription").Preload("Metrics").Find(&customers).Error; err != nil {
		run.Status = "failed"
		run.Message = fmt.Sprintf("加载客户列表失败: %v", err)
		o.finalizeRun(ctx, run)
		return run
	}

	run.TotalCustomers = len(customers)

	// 无订阅的客户跳过评分，单独计数
	eligible := make([]*models.Customer, 0, len(customers))
	for i := range customers {
		if customers[i].Subscription == nil {
			run.SkippedCount++
			continue
		}
		eligible = append(eligible, &customers[i])
	}
	predictionsTotal.WithLabelValues("skipped").Add(float64(run.SkippedCount))

	// 同一运行的全部预测共享同一分析时间戳，"最新预测"比较才有明确定义
	runTimestamp := run.StartTime

	for start := 0; start < len(eligible); start += o.batchSize {
		end := start + o.batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		o.processChunk(ctx, run, eligible[start:end], runTimestamp)
	}

	// 缓存整体失效必须在所有块提交之后，避免新旧预测混杂
	if err := o.cache.InvalidateAll(ctx); err != nil {
		slog.Warn("全量失效预测缓存失败", "run_id", run.ID, "error", err)
	}

	switch {
	case run.TotalCustomers == 0:
		run.Status = "success"
		run.Message = "数据库中没有客户"
	case run.FailureCount == 0:
		run.Status = "success"
	case run.SuccessCount == 0:
		run.Status = "failed"
	default:
		run.Status = "partial"
	}
	if run.Message == "" {
		run.Message = fmt.Sprintf("共%d个客户：成功%d，失败%d，跳过%d（无订阅）",
			run.TotalCustomers, run.SuccessCount, run.FailureCount, run.SkippedCount)
	}

	o.finalizeRun(ctx, run)

	slog.Info("全量流失预测完成",
		"run_id", run.ID,
		"status", run.Status,
		"total", run.TotalCustomers,
		"success", run.SuccessCount,
		"failure", run.FailureCount,
		"skipped", run.SkippedCount)

	return run
}

// processChunk 处理一个块：整块评分、整块单事务落库；任何失败都让整块计入失败并继续
func (o *Orchestrator) processChunk(ctx context.Context, run *models.PredictionRun, chunk []*models.Customer, runTimestamp time.Time) {
	features := make([]*FeatureVectorV2, 0, len(chunk))
	owners := make([]*models.Customer, 0, len(chunk))

	for _, customer := range chunk {
		fv, err := ProjectFeatures(customer)
		if err != nil {
			// 有订阅的客户投影不应失败，防御性计入失败
			run.FailureCount++
			predictionsTotal.WithLabelValues("failure").Inc()
			continue
		}
		features = append(features, fv)
		owners = append(owners, customer)
	}

	if len(features) == 0 {
		return
	}

	results, err := o.client.ScoreBatch(ctx, features)
	if err != nil {
		slog.Error("块评分失败，整块计入失败", "run_id", run.ID, "chunk_size", len(features), "error", err)
		run.FailureCount += len(features)
		predictionsTotal.WithLabelValues("failure").Add(float64(len(features)))
		return
	}

	predictions := make([]*models.Prediction, 0, len(results))
	for i, result := range results {
		predictions = append(predictions, &models.Prediction{
			CustomerID:       owners[i].ID,
			ChurnProbability: ClampProbability(result.Probability),
			MainFactor:       result.MainFactor,
			AnalyzedAt:       runTimestamp,
			RunID:            run.ID,
		})
	}

	if err := o.store.InsertBatch(predictions); err != nil {
		slog.Error("块落库失败，整块计入失败", "run_id", run.ID, "chunk_size", len(predictions), "error", err)
		run.FailureCount += len(predictions)
		predictionsTotal.WithLabelValues("failure").Add(float64(len(predictions)))
		return
	}

	run.SuccessCount += len(predictions)
	predictionsTotal.WithLabelValues("success").Add(float64(len(predictions)))

	// 落库后RiskLevel已由钩子推导，据此累计各等级数量
	for _, p := range predictions {
		switch RiskLevel(p.RiskLevel) {
		case RiskLow:
			run.LowCount++
		case RiskMedium:
			run.MediumCount++
		case RiskHigh:
			run.HighCount++
		}
	}
}

// finalizeRun 写回运行终态并发布事件
func (o *Orchestrator) finalizeRun(ctx context.Context, run *models.PredictionRun) {
	now := time.Now()
	run.EndTime = &now
	runDurationSeconds.Set(now.Sub(run.StartTime).Seconds())

	if err := o.db.Save(run).Error; err != nil {
		slog.Error("保存运行摘要失败", "run_id", run.ID, "error", err)
	}

	if err := o.publisher.Publish(ctx, event.TypeRunCompleted, run); err != nil {
		slog.Warn("发布运行摘要事件失败", "run_id", run.ID, "error", err)
	}

	for _, hook := range o.runCompletedHooks {
		hook()
	}
}

func (o *Orchestrator) loadCustomer(customerID string) (*models.Customer, error) {
	var customer models.Customer
	err := o.db.Preload("Subscription").Preload("Metrics").First(&customer, "id = ?", customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("加载客户失败: %w", err)
	}
	return &customer, nil
}

func responseFromPrediction(p *models.Prediction) *PredictionResponse {
	analyzedAt := p.AnalyzedAt
	return &PredictionResponse{
		CustomerID:     p.CustomerID,
		Probability:    p.ChurnProbability,
		RiskLevel:      NormalizeRiskLabel(p.RiskLevel),
		MainFactor:     p.MainFactor,
		NextBestAction: NextBestAction(p.MainFactor),
		Synthesized:    false,
		AnalyzedAt:     &analyzedAt,
	}
}
