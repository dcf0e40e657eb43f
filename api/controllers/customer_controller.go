/*
 * @module api/controllers/customer_controller
 * @description 客户查询控制器，提供客户分页列表、详情查询与数据库全量重置接口
 * @architecture 分层架构 - 控制器层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow HTTP请求处理流程
 * @rules 全量重置是唯一的批量删除入口，按外键依赖顺序清空业务表
 * @dependencies churn-service/service, github.com/go-chi/chi/v5
 * @refs dev_docs/model.md
 */

package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"churn-service/service"
	"churn-service/service/database"
	"churn-service/service/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"gorm.io/gorm"
)

// CustomerController 客户查询控制器
type CustomerController struct {
	db *gorm.DB
}

// NewCustomerController 创建客户查询控制器实例
func NewCustomerController() *CustomerController {
	return &CustomerController{
		db: service.DB,
	}
}

// GetCustomers 获取客户列表
// @Summary 获取客户列表
// @Description 分页获取客户列表，含订阅与行为指标
// @Tags 客户
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页数量" default(20)
// @Param segmento query string false "客户分层"
// @Param borough query string false "行政区"
// @Success 200 {object} PaginatedResponse{data=[]models.Customer} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /customers [get]
func (c *CustomerController) GetCustomers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 20
	}

	query := c.db.Model(&models.Customer{})
	if segmento := r.URL.Query().Get("segmento"); segmento != "" {
		query = query.Where("segmento = ?", segmento)
	}
	if borough := r.URL.Query().Get("borough"); borough != "" {
		query = query.Where("LOWER(borough) = LOWER(?)", borough)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "统计客户总数失败",
		})
		return
	}

	var customers []models.Customer
	err := query.Preload("Subscription").Preload("Metrics").
		Offset((page - 1) * size).Limit(size).
		Order("id").
		Find(&customers).Error
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取客户列表失败",
		})
		return
	}

	render.JSON(w, r, PaginatedResponse{
		Status: http.StatusOK,
		Msg:    "获取客户列表成功",
		Data:   customers,
		Total:  total,
		Page:   page,
		Size:   size,
	})
}

// GetCustomer 根据ID获取客户详情
// @Summary 获取客户详情
// @Description 根据ID获取客户及其订阅与行为指标
// @Tags 客户
// @Produce json
// @Param id path string true "客户ID"
// @Success 200 {object} APIResponse{data=models.Customer} "获取成功"
// @Failure 404 {object} APIResponse "客户不存在"
// @Router /customers/{id} [get]
func (c *CustomerController) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var customer models.Customer
	err := c.db.Preload("Subscription").Preload("Metrics").First(&customer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		render.JSON(w, r, APIResponse{
			Status: http.StatusNotFound,
			Msg:    "客户不存在",
		})
		return
	}
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "获取客户详情失败",
		})
		return
	}

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "获取客户详情成功",
		Data:   customer,
	})
}

// ResetDatabase 全量重置业务数据
// @Summary 全量重置业务数据
// @Description 单事务内按依赖顺序清空预测、运行记录、指标、订阅与客户表
// @Tags 客户
// @Produce json
// @Success 200 {object} APIResponse{data=database.ResetStats} "重置成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /database/reset [delete]
func (c *CustomerController) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	stats, err := database.ResetAll(c.db)
	if err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "数据库重置失败",
		})
		return
	}

	// 重置后全部派生状态失效
	if err := service.GlobalCache.InvalidateAll(r.Context()); err != nil {
		render.JSON(w, r, APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "重置后失效预测缓存失败",
		})
		return
	}
	service.GlobalDashboardService.ClearCache()
	service.GlobalInsightsService.ClearCache()

	render.JSON(w, r, APIResponse{
		Status: http.StatusOK,
		Msg:    "数据库重置成功",
		Data:   stats,
	})
}
