/*
 * @module api/controllers/prediction_controller
 * @description 流失预测控制器，提供单客户预测、当前风险查询、历史查询、全量运行等API接口
 * @architecture 分层架构 - 控制器层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow HTTP请求处理流程
 * @rules 按错误类别映射HTTP状态：资料不全422、评分服务不可用503（可重试）、协议错误502、
 *        客户不存在404、运行互斥冲突409
 * @dependencies churn-service/service, github.com/go-chi/chi/v5
 * @refs dev_docs/model.md
 */

package controllers

import (
	"errors"
	"net/http"

	"churn-service/service"
	"churn-service/service/prediction"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// PredictionController 流失预测控制器
type PredictionController struct {
	orchestrator *prediction.Orchestrator
}

// NewPredictionController 创建流失预测控制器实例
func NewPredictionController() *PredictionController {
	return &PredictionController{
		orchestrator: service.GlobalOrchestrator,
	}
}

// PredictCustomer 对单个客户执行实时预测
// @Summary 单客户流失预测
// @Description 投影客户特征并调用评分服务，持久化一条新预测后返回
// @Tags 预测
// @Produce json
// @Param id path string true "客户ID"
// @Success 200 {object} APIResponse{data=prediction.PredictionResponse} "预测成功"
// @Failure 404 {object} APIResponse "客户不存在"
// @Failure 422 {object} APIResponse "客户资料不完整"
// @Failure 502 {object} APIResponse "评分服务协议错误"
// @Failure 503 {object} APIResponse "评分服务不可用，可重试"
// @Router /predictions/customers/{id} [post]
func (c *PredictionController) PredictCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")

	result, err := c.orchestrator.PredictForCustomer(r.Context(), customerID)
	if err != nil {
		c.renderPredictionError(w, r, err)
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "预测成功",
		Data:   result,
	})
}

// GetCurrentRisk 查询客户当前风险
// @Summary 查询客户当前风险
// @Description 读取最近一次预测，无预测时返回确定性合成风险，不调用评分服务
// @Tags 预测
// @Produce json
// @Param id path string true "客户ID"
// @Success 200 {object} APIResponse{data=prediction.PredictionResponse} "查询成功"
// @Failure 404 {object} APIResponse "客户不存在"
// @Router /predictions/customers/{id} [get]
func (c *PredictionController) GetCurrentRisk(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")

	result, err := c.orchestrator.CurrentRisk(r.Context(), customerID)
	if err != nil {
		c.renderPredictionError(w, r, err)
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "查询当前风险成功",
		Data:   result,
	})
}

// GetHistory 查询客户预测历史
// @Summary 查询客户预测历史
// @Description 按分析时间倒序返回客户的全部历史预测
// @Tags 预测
// @Produce json
// @Param id path string true "客户ID"
// @Success 200 {object} APIResponse{data=[]models.Prediction} "查询成功"
// @Failure 404 {object} APIResponse "客户不存在"
// @Router /predictions/customers/{id}/history [get]
func (c *PredictionController) GetHistory(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")

	history, err := c.orchestrator.History(r.Context(), customerID)
	if err != nil {
		c.renderPredictionError(w, r, err)
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "查询预测历史成功",
		Data:   history,
	})
}

// RunAll 触发全量预测
// @Summary 触发全量预测
// @Description 对全部客户分块评分。默认同步执行返回完整摘要；async=true时立即返回运行ID
// @Tags 预测
// @Produce json
// @Param async query bool false "是否异步执行" default(false)
// @Success 200 {object} APIResponse{data=models.PredictionRun} "同步运行完成"
// @Success 202 {object} APIResponse{data=models.PredictionRun} "异步运行已受理"
// @Failure 409 {object} APIResponse "已有运行在进行中"
// @Router /predictions/run-all [post]
func (c *PredictionController) RunAll(w http.ResponseWriter, r *http.Request) {
	async := r.URL.Query().Get("async") == "true"

	if async {
		run, err := c.orchestrator.PredictAllAsync(r.Context())
		if err != nil {
			c.renderPredictionError(w, r, err)
			return
		}
		render.JSON(w, r, APIResponse{
			Status: http.StatusAccepted,
			Msg:    "全量预测已受理，可按运行ID查询进度",
			Data:   run,
		})
		return
	}

	run, err := c.orchestrator.PredictAll(r.Context())
	if err != nil {
		c.renderPredictionError(w, r, err)
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "全量预测完成",
		Data:   run,
	})
}

// GetRun 查询全量预测运行摘要
// @Summary 查询全量预测运行摘要
// @Description 按运行ID查询全量预测的状态与统计
// @Tags 预测
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=models.PredictionRun} "查询成功"
// @Failure 404 {object} APIResponse "运行记录不存在"
// @Router /predictions/runs/{id} [get]
func (c *PredictionController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := c.orchestrator.GetRun(runID)
	if err != nil {
		c.renderPredictionError(w, r, err)
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "查询运行摘要成功",
		Data:   run,
	})
}

// renderPredictionError 按错误类别渲染响应
func (c *PredictionController) renderPredictionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, prediction.ErrCustomerNotFound):
		render.JSON(w, r, APIResponse{
			Status: http.StatusNotFound,
			Msg:    "客户不存在",
		})
	case errors.Is(err, prediction.ErrRunNotFound):
		render.JSON(w, r, APIResponse{
			Status: http.StatusNotFound,
			Msg:    "运行记录不存在",
		})
	case errors.Is(err, prediction.ErrRunInProgress):
		render.JSON(w, r, APIResponse{
			Status: http.StatusConflict,
			Msg:    "已有全量预测在运行中",
		})
	case prediction.IsIncompleteCustomer(err):
		render.JSON(w, r, APIResponse{
			Status: http.StatusUnprocessableEntity,
			Msg:    "客户资料不完整，缺少订阅信息",
		})
	case prediction.IsScoringUnavailable(err):
		render.JSON(w, r, APIResponse{
			Status: http.StatusServiceUnavailable,
			Msg:    "评分服务暂时不可用，请稍后重试",
		})
	case prediction.IsScoringProtocol(err):
		render.JSON(w, r, APIResponse{
			Status: http.StatusBadGateway,
			Msg:    "评分服务返回异常响应",
		})
	default:
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "预测处理失败",
		})
	}
}
