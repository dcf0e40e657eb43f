/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package api

import (
	"churn-service/api/controllers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 流失预测
	r.Route("/predictions", func(r chi.Router) {
		predictionController := controllers.NewPredictionController()

		// 单客户预测与风险查询
		r.Route("/customers/{id}", func(r chi.Router) {
			r.Post("/", predictionController.PredictCustomer)
			r.Get("/", predictionController.GetCurrentRisk)
			r.Get("/history", predictionController.GetHistory)
		})

		// 全量预测，async=true时异步执行
		r.Post("/run-all", predictionController.RunAll)

		// 运行摘要查询
		r.Get("/runs/{id}", predictionController.GetRun)
	})

	// 客户查询
	r.Route("/customers", func(r chi.Router) {
		customerController := controllers.NewCustomerController()
		r.Get("/", customerController.GetCustomers)
		r.Get("/{id}", customerController.GetCustomer)
	})

	// 仪表盘
	r.Route("/dashboard", func(r chi.Router) {
		dashboardController := controllers.NewDashboardController()
		r.Get("/stats", dashboardController.GetStats)
		r.Get("/heatmap", dashboardController.GetHeatmap)
		r.Get("/alerts", dashboardController.GetAlerts)
		r.Delete("/cache", dashboardController.ClearCache)
	})

	// 经营洞察
	r.Route("/insights", func(r chi.Router) {
		insightsController := controllers.NewInsightsController()
		r.Get("/priority", insightsController.GetPriorityInsights)
		r.Get("/contracts", insightsController.GetContractAnalysis)
		r.Get("/support", insightsController.GetSupportAnalysis)
		r.Get("/segments", insightsController.GetSegmentAnalysis)
		r.Post("/refresh", insightsController.RefreshInsights)
	})

	// 数据库全量重置
	customerController := controllers.NewCustomerController()
	r.Delete("/database/reset", customerController.ResetDatabase)
}
