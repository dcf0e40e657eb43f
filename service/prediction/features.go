/*
 * @module service/prediction/features
 * @description 客户特征投影器：把客户聚合（含订阅与行为指标）拍平为评分服务需要的特征向量
 * @architecture 分层架构 - 纯映射工具
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 客户聚合 -> 缺失字段取安全默认值 -> 派生特征内联计算 -> 固定形状特征向量
 * @rules 仅当客户没有订阅时报错；其余缺失一律按领域默认值降级，输出字段永不为空
 * @dependencies churn-service/service/models
 * @refs service/prediction/scoring_client.go
 */

package prediction

import (
	"time"

	"churn-service/service/models"
)

// FeatureVectorV2 评分服务的特征集契约（v2，23个特征，含派生特征）
// 字段形状与评分服务的输入模型一一对应，是版本化契约的一部分
type FeatureVectorV2 struct {
	DiasActivosSemanales    int     `json:"dias_activos_semanales"`
	PromedioConexion        float64 `json:"promedio_conexion"`
	ConexionesMensuales     int     `json:"conexiones_mensuales"`
	CaracteristicasUsadas   int     `json:"caracteristicas_usadas"`
	DiasUltimaConexion      int     `json:"dias_ultima_conexion"`
	IntensidadUso           float64 `json:"intensidad_uso"` // 派生：月连接数 × 平均连接时长
	TicketsSoporte          int     `json:"tickets_soporte"`
	PuntuacionNps           float64 `json:"puntuacion_nps"`
	TasaCrecimientoUso      float64 `json:"tasa_crecimiento_uso"`
	PuntuacionCsat          float64 `json:"puntuacion_csat"`
	RatioCargaFinanciera    float64 `json:"ratio_carga_financiera"` // 派生：月费 / 总历史收入
	TasaAperturaEmail       float64 `json:"tasa_apertura_email"`
	ErroresPago             int     `json:"errores_pago"`
	Antiguedad              int     `json:"antiguedad"`
	IngresosTotales         float64 `json:"ingresos_totales"`
	Latitud                 float64 `json:"latitud"`
	CargoMensual            float64 `json:"cargo_mensual"`
	TiempoResolucion        float64 `json:"tiempo_resolucion"`
	Longitud                float64 `json:"longitud"`
	CodigoPostal            string  `json:"codigo_postal"`
	Edad                    int     `json:"edad"`
	DiasDesdeUltimoContacto int     `json:"dias_desde_ultimo_contacto"` // 派生：距最近支持联系的天数
	TiempoSesionPromedio    float64 `json:"tiempo_sesion_promedio"`
}

// ProjectFeatures 将客户聚合拍平为特征向量
// 客户没有订阅时返回 IncompleteCustomerError，其余缺失按默认值降级
func ProjectFeatures(c *models.Customer) (*FeatureVectorV2, error) {
	return projectFeaturesAt(c, time.Now())
}

func projectFeaturesAt(c *models.Customer, now time.Time) (*FeatureVectorV2, error) {
	if c.Subscription == nil {
		return nil, &IncompleteCustomerError{CustomerID: c.ID}
	}

	sub := c.Subscription
	metrics := c.Metrics // 可能为nil

	// 派生特征1：使用强度 = 月连接数 × 平均连接时长
	conexiones := float64(intOrDefault(metricsInt(metrics, func(m *models.CustomerMetrics) *int { return m.ConeccionesMensuales }), 0))
	promedio := floatOrDefault(metricsFloat(metrics, func(m *models.CustomerMetrics) *float64 { return m.PromedioConeccion }), 0.0)
	intensidadUso := conexiones * promedio

	// 派生特征2：财务负担比 = 月费 / 总历史收入（收入为0时取0）
	cargoMensual := floatOrDefault(sub.CuotaMensual, 50.0)
	ingresosTotales := floatOrDefault(sub.IngresosTotales, 100.0)
	ratioCarga := 0.0
	if ingresosTotales > 0 {
		ratioCarga = cargoMensual / ingresosTotales
	}

	// 派生特征3：距最近支持联系的天数
	diasDesdeContacto := 0
	if metrics != nil && metrics.UltimoContactoSoporte != nil {
		diasDesdeContacto = int(now.Sub(*metrics.UltimoContactoSoporte).Hours() / 24)
		if diasDesdeContacto < 0 {
			diasDesdeContacto = 0
		}
	}

	return &FeatureVectorV2{
		DiasActivosSemanales:    intOrDefault(metricsInt(metrics, func(m *models.CustomerMetrics) *int { return m.DiasActivosSemanales }), 0),
		PromedioConexion:        promedio,
		ConexionesMensuales:     int(conexiones),
		CaracteristicasUsadas:   intOrDefault(metricsInt(metrics, func(m *models.CustomerMetrics) *int { return m.CaracteristicasUsadas }), 0),
		DiasUltimaConexion:      intOrDefault(metricsInt(metrics, func(m *models.CustomerMetrics) *int { return m.DiasUltimaConeccion }), 0),
		IntensidadUso:           intensidadUso,
		TicketsSoporte:          intOrDefault(metricsInt(metrics, func(m *models.CustomerMetrics) *int { return m.TicketsSoporte }), 0),
		PuntuacionNps:           floatFromInt(metricsInt(metrics, func(m *models.CustomerMetrics) *int { return m.ScoreNps }), 50.0),
		TasaCrecimientoUso:      floatOrDefault(metricsFloat(metrics, func(m *models.CustomerMetrics) *float64 { return m.TasaCrecimientoUso }), 0.0),
		PuntuacionCsat:          floatOrDefault(metricsFloat(metrics, func(m *models.CustomerMetrics) *float64 { return m.ScoreCsat }), 3.0),
		RatioCargaFinanciera:    ratioCarga,
		TasaAperturaEmail:       floatOrDefault(metricsFloat(metrics, func(m *models.CustomerMetrics) *float64 { return m.TasaAperturaEmail }), 0.5),
		ErroresPago:             intOrDefault(sub.ErroresPago, 0),
		Antiguedad:              intOrDefault(sub.MesesPermanencia, 1),
		IngresosTotales:         ingresosTotales,
		Latitud:                 floatOrDefault(c.Latitud, 0.0),
		CargoMensual:            cargoMensual,
		TiempoResolucion:        floatOrDefault(metricsFloat(metrics, func(m *models.CustomerMetrics) *float64 { return m.TiempoResolucion }), 24.0),
		Longitud:                floatOrDefault(c.Longitud, 0.0),
		CodigoPostal:            stringOrDefault(c.CodigoPostal, "00000"),
		Edad:                    intOrDefault(c.Edad, 30),
		DiasDesdeUltimoContacto: diasDesdeContacto,
		TiempoSesionPromedio:    floatOrDefault(metricsFloat(metrics, func(m *models.CustomerMetrics) *float64 { return m.TiempoSesionPromedio }), 0.0),
	}, nil
}

func metricsInt(m *models.CustomerMetrics, pick func(*models.CustomerMetrics) *int) *int {
	if m == nil {
		return nil
	}
	return pick(m)
}

func metricsFloat(m *models.CustomerMetrics, pick func(*models.CustomerMetrics) *float64) *float64 {
	if m == nil {
		return nil
	}
	return pick(m)
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOrDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func floatFromInt(v *int, def float64) float64 {
	if v == nil {
		return def
	}
	return float64(*v)
}

func stringOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
