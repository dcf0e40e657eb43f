/*
 * @module api/controllers/dashboard_controller
 * @description 仪表盘控制器，提供人群统计、地理风险热力图、关键预警与缓存清除接口
 * @architecture 分层架构 - 控制器层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow HTTP请求处理流程
 * @rules 仪表盘读取全部幂等；缓存清除后下一次读取重新聚合
 * @dependencies churn-service/service
 * @refs dev_docs/model.md
 */

package controllers

import (
	"net/http"

	"churn-service/service"
	"churn-service/service/dashboard"

	"github.com/go-chi/render"
)

// DashboardController 仪表盘控制器
type DashboardController struct {
	dashboardService *dashboard.Service
	alertsService    *dashboard.AlertsService
}

// NewDashboardController 创建仪表盘控制器实例
func NewDashboardController() *DashboardController {
	return &DashboardController{
		dashboardService: service.GlobalDashboardService,
		alertsService:    service.GlobalAlertsService,
	}
}

// GetStats 获取仪表盘总览统计
// @Summary 获取仪表盘总览统计
// @Description 客户总数、历史流失率、月度收入、流失收入与平均满意度
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=dashboard.DashboardStats} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /dashboard/stats [get]
func (c *DashboardController) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.dashboardService.GetDashboardStats()
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取仪表盘统计失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取仪表盘统计成功",
		Data:   stats,
	})
}

// GetHeatmap 获取地理风险热力图
// @Summary 获取地理风险热力图
// @Description 带坐标客户的流失风险点位，可按行政区过滤；无真实预测的客户返回合成风险
// @Tags 仪表盘
// @Produce json
// @Param borough query string false "行政区过滤"
// @Success 200 {object} APIResponse{data=[]dashboard.HeatmapPoint} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /dashboard/heatmap [get]
func (c *DashboardController) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	borough := r.URL.Query().Get("borough")

	points, err := c.dashboardService.GetHeatmapData(borough)
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取热力图数据失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取热力图数据成功",
		Data:   points,
	})
}

// GetAlerts 获取关键预警列表
// @Summary 获取关键预警列表
// @Description 基于当前数据推导的阈值型预警：高工单、风险中的月付合同、入网关键期
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=[]dashboard.CriticalAlert} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /dashboard/alerts [get]
func (c *DashboardController) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := c.alertsService.GetCriticalAlerts(r.Context())
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取关键预警失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取关键预警成功",
		Data:   alerts,
	})
}

// ClearCache 清除仪表盘聚合缓存
// @Summary 清除仪表盘聚合缓存
// @Description 显式清除统计与热力图的聚合结果缓存
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse "清除成功"
// @Router /dashboard/cache [delete]
func (c *DashboardController) ClearCache(w http.ResponseWriter, r *http.Request) {
	c.dashboardService.ClearCache()

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "仪表盘缓存已清除",
	})
}
