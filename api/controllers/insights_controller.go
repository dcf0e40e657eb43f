/*
 * @module api/controllers/insights_controller
 * @description 经营洞察控制器，提供高优先级挽留名单与合同/工单/分群维度分析接口
 * @architecture 分层架构 - 控制器层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow HTTP请求处理流程
 * @rules 洞察读取全部幂等；刷新接口清除洞察缓存后下一次读取重新聚合
 * @dependencies churn-service/service
 * @refs dev_docs/model.md
 */

package controllers

import (
	"net/http"

	"churn-service/service"
	"churn-service/service/dashboard"

	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

// InsightsController 经营洞察控制器
type InsightsController struct {
	insightsService *dashboard.InsightsService
}

// NewInsightsController 创建经营洞察控制器实例
func NewInsightsController() *InsightsController {
	return &InsightsController{
		insightsService: service.GlobalInsightsService,
	}
}

// GetPriorityInsights 获取高优先级挽留名单
// @Summary 获取高优先级挽留名单
// @Description 在网客户中Medium/High风险的名单，按流失概率降序，优先分为概率×月费
// @Tags 经营洞察
// @Produce json
// @Param limit query int false "名单上限" default(50)
// @Success 200 {object} APIResponse{data=[]dashboard.PriorityInsight} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /insights/priority [get]
func (c *InsightsController) GetPriorityInsights(w http.ResponseWriter, r *http.Request) {
	limit := cast.ToInt(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	insights, err := c.insightsService.GetPriorityInsights(limit)
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取挽留名单失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取挽留名单成功",
		Data:   insights,
	})
}

// GetContractAnalysis 获取合同维度流失分析
// @Summary 获取合同维度流失分析
// @Description 按合同类型统计客户数、流失率与平均月费
// @Tags 经营洞察
// @Produce json
// @Success 200 {object} APIResponse{data=[]dashboard.ContractAnalysis} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /insights/contracts [get]
func (c *InsightsController) GetContractAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := c.insightsService.GetContractAnalysis()
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取合同分析失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取合同分析成功",
		Data:   analysis,
	})
}

// GetSupportAnalysis 获取工单维度流失分析
// @Summary 获取工单维度流失分析
// @Description 按工单量区间（0-2、3-5、6+）统计客户数与流失率
// @Tags 经营洞察
// @Produce json
// @Success 200 {object} APIResponse{data=[]dashboard.SupportAnalysis} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /insights/support [get]
func (c *InsightsController) GetSupportAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := c.insightsService.GetSupportAnalysis()
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取工单分析失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取工单分析成功",
		Data:   analysis,
	})
}

// GetSegmentAnalysis 获取分群维度流失分析
// @Summary 获取分群维度流失分析
// @Description 按客户分群统计客户数、平均月费与流失率
// @Tags 经营洞察
// @Produce json
// @Success 200 {object} APIResponse{data=[]dashboard.SegmentAnalysis} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /insights/segments [get]
func (c *InsightsController) GetSegmentAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := c.insightsService.GetSegmentAnalysis()
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取分群分析失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取分群分析成功",
		Data:   analysis,
	})
}

// RefreshInsights 刷新经营洞察
// @Summary 刷新经营洞察
// @Description 清除洞察结果缓存，下一次读取重新聚合
// @Tags 经营洞察
// @Produce json
// @Success 200 {object} APIResponse "刷新成功"
// @Router /insights/refresh [post]
func (c *InsightsController) RefreshInsights(w http.ResponseWriter, r *http.Request) {
	c.insightsService.ClearCache()

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "经营洞察缓存已清除",
	})
}
