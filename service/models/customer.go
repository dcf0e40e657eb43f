/*
 * @module service/models/customer
 * @description 客户相关模型定义，包括客户、订阅、行为指标三个核心实体
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/model.md
 * @stateFlow 批量导入创建 -> 地理信息补充/指标更新 -> 仅全量重置时删除
 * @rules 客户独占拥有订阅和指标（1:1），预测记录只持有客户ID的回引用，避免序列化环
 * @dependencies gorm.io/gorm
 * @refs dev_docs/requirements.md
 */

package models

import (
	"time"
)

// Customer 客户模型
type Customer struct {
	ID           string   `json:"id" gorm:"primaryKey;type:varchar(36)" example:"0621-TSSMU"`
	Genero       string   `json:"genero" gorm:"size:20"`
	Edad         *int     `json:"edad,omitempty"`
	Pais         string   `json:"pais" gorm:"size:100"`
	Ciudad       string   `json:"ciudad" gorm:"size:100;index"`
	Estado       string   `json:"estado" gorm:"size:50"`
	Borough      string   `json:"borough" gorm:"size:50;index"` // Manhattan, Brooklyn, Queens, Bronx, Staten Island
	CodigoPostal string   `json:"codigo_postal" gorm:"size:20"`
	Segmento     string   `json:"segmento" gorm:"size:50"`
	Latitud      *float64 `json:"latitud,omitempty"`
	Longitud     *float64 `json:"longitud,omitempty"`

	// 人口/地理附加属性
	EsMayor             *int       `json:"es_mayor,omitempty"` // 0 或 1
	TienePareja         *string    `json:"tiene_pareja,omitempty" gorm:"size:10"`
	TieneDependientes   *string    `json:"tiene_dependientes,omitempty" gorm:"size:10"`
	IngresoMediano      *float64   `json:"ingreso_mediano,omitempty"`
	DensidadPoblacional *float64   `json:"densidad_poblacional,omitempty"`
	FechaRegistro       *time.Time `json:"fecha_registro,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系（单向拥有，预测历史不在此聚合内）
	Subscription *Subscription    `json:"subscription,omitempty" gorm:"foreignKey:CustomerID"`
	Metrics      *CustomerMetrics `json:"metrics,omitempty" gorm:"foreignKey:CustomerID"`
}

// BoroughRisk 根据人口密度计算行政区风险系数
func (c *Customer) BoroughRisk() float64 {
	if c.DensidadPoblacional == nil {
		return 0.0
	}

	switch {
	case *c.DensidadPoblacional > 30000:
		return 0.75
	case *c.DensidadPoblacional > 15000:
		return 0.50
	default:
		return 0.25
	}
}

// HighDensityArea 判断是否为高密度区域，1为高密度
func (c *Customer) HighDensityArea() int {
	if c.DensidadPoblacional != nil && *c.DensidadPoblacional > 30000 {
		return 1
	}
	return 0
}

// IncomeBracket 根据中位收入计算收入档位
func (c *Customer) IncomeBracket() string {
	if c.IngresoMediano == nil {
		return "Medium"
	}

	switch {
	case *c.IngresoMediano < 50000:
		return "Low"
	case *c.IngresoMediano < 80000:
		return "Medium"
	default:
		return "High"
	}
}

// HasCoordinates 判断客户是否具备有效坐标
func (c *Customer) HasCoordinates() bool {
	return c.Latitud != nil && c.Longitud != nil
}

// Subscription 订阅模型，由一个客户独占
type Subscription struct {
	ID         uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	CustomerID string `json:"customer_id" gorm:"not null;type:varchar(36);uniqueIndex"`

	MesesPermanencia *int     `json:"meses_permanencia,omitempty"`
	CanalRegistro    string   `json:"canal_registro" gorm:"size:50"`
	TipoContrato     *string  `json:"tipo_contrato,omitempty" gorm:"size:50"` // Mensual, Anual, Dos años
	CuotaMensual     *float64 `json:"cuota_mensual,omitempty"`
	IngresosTotales  *float64 `json:"ingresos_totales,omitempty"`
	MetodoPago       *string  `json:"metodo_pago,omitempty" gorm:"size:50"`
	ErroresPago      *int     `json:"errores_pago,omitempty"`

	DescuentoAplicado string `json:"descuento_aplicado" gorm:"size:10"`
	AumentoPrecio3m   string `json:"aumento_precio_3m" gorm:"size:10"`

	// 服务标志，"Si" / "No" / "Sin servicio"
	ServicioTelefono      *string `json:"servicio_telefono,omitempty" gorm:"size:30"`
	LineasMultiples       *string `json:"lineas_multiples,omitempty" gorm:"size:30"`
	TipoInternet          *string `json:"tipo_internet,omitempty" gorm:"size:30"`
	SeguridadOnline       *string `json:"seguridad_online,omitempty" gorm:"size:30"`
	RespaldoOnline        *string `json:"respaldo_online,omitempty" gorm:"size:30"`
	ProteccionDispositivo *string `json:"proteccion_dispositivo,omitempty" gorm:"size:30"`
	SoporteTecnico        *string `json:"soporte_tecnico,omitempty" gorm:"size:30"`
	StreamingTV           *string `json:"streaming_tv,omitempty" gorm:"size:30"`
	StreamingPeliculas    *string `json:"streaming_peliculas,omitempty" gorm:"size:30"`
	FacturacionSinPapel   *string `json:"facturacion_sin_papel,omitempty" gorm:"size:10"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// PremiumServiceCount 统计开通的增值服务数量
func (s *Subscription) PremiumServiceCount() int {
	count := 0
	for _, flag := range []*string{
		s.SeguridadOnline,
		s.RespaldoOnline,
		s.ProteccionDispositivo,
		s.SoporteTecnico,
		s.StreamingTV,
		s.StreamingPeliculas,
	} {
		if flag != nil && *flag == "Si" {
			count++
		}
	}
	return count
}

// TenureGroup 根据在网时长计算客户生命周期分组
func (s *Subscription) TenureGroup() string {
	months := 1
	if s.MesesPermanencia != nil {
		months = *s.MesesPermanencia
	}

	switch {
	case months <= 12:
		return "0-12"
	case months <= 24:
		return "13-24"
	case months <= 48:
		return "25-48"
	default:
		return "49+"
	}
}

// CustomerMetrics 客户行为指标模型，由一个客户独占
type CustomerMetrics struct {
	ID         uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	CustomerID string `json:"customer_id" gorm:"not null;type:varchar(36);uniqueIndex"`

	// 使用行为
	ConeccionesMensuales  *int     `json:"conecciones_mensuales,omitempty"`
	DiasActivosSemanales  *int     `json:"dias_activos_semanales,omitempty"`
	PromedioConeccion     *float64 `json:"promedio_coneccion,omitempty"`
	CaracteristicasUsadas *int     `json:"caracteristicas_usadas,omitempty"`
	TasaCrecimientoUso    *float64 `json:"tasa_crecimiento_uso,omitempty"`
	DiasUltimaConeccion   *int     `json:"dias_ultima_coneccion,omitempty"`
	TiempoSesionPromedio  *float64 `json:"tiempo_sesion_promedio,omitempty"`

	// 支持与投诉
	TicketsSoporte         *int       `json:"tickets_soporte,omitempty"`
	TiempoResolucion       *float64   `json:"tiempo_resolucion,omitempty"`
	TipoQueja              *string    `json:"tipo_queja,omitempty" gorm:"size:100"`
	EscaladasSoporte       *int       `json:"escaladas_soporte,omitempty"`
	UltimoContactoSoporte  *time.Time `json:"ultimo_contacto_soporte,omitempty"`

	// 满意度与互动
	ScoreCsat         *float64 `json:"score_csat,omitempty"`
	ScoreNps          *int     `json:"score_nps,omitempty"`
	RespuestaEncuesta string   `json:"respuesta_encuesta" gorm:"size:20"`
	TasaAperturaEmail *float64 `json:"tasa_apertura_email,omitempty"`
	TasaClics         *float64 `json:"tasa_clics,omitempty"`
	ReferenciasHechas *int     `json:"referencias_hechas,omitempty"`

	// 历史流失标志
	AbandonoHistorico *bool `json:"abandono_historico,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}
