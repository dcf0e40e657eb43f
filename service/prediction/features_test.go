/*
 * @module service/prediction/features_test
 * @description 客户特征投影器单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 构造客户聚合 -> 投影 -> 验证特征值与默认值
 * @rules 无订阅必须报数据不完整错误；其余缺失字段必须落到领域默认值
 * @dependencies testing, stretchr/testify
 */

package prediction

import (
	"testing"
	"time"

	"churn-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// TestProjectFeaturesWithoutSubscription 测试无订阅客户报数据不完整错误
func TestProjectFeaturesWithoutSubscription(t *testing.T) {
	customer := &models.Customer{ID: "cust-1"}

	fv, err := ProjectFeatures(customer)
	assert.Nil(t, fv)
	require.Error(t, err)
	assert.True(t, IsIncompleteCustomer(err))
}

// TestProjectFeaturesDefaults 测试缺失指标时的领域默认值
func TestProjectFeaturesDefaults(t *testing.T) {
	customer := &models.Customer{
		ID:           "cust-2",
		Subscription: &models.Subscription{CustomerID: "cust-2"},
		// Metrics 为 nil
	}

	fv, err := ProjectFeatures(customer)
	require.NoError(t, err)

	assert.Equal(t, 50.0, fv.CargoMensual)
	assert.Equal(t, 100.0, fv.IngresosTotales)
	assert.Equal(t, 1, fv.Antiguedad)
	assert.Equal(t, 50.0, fv.PuntuacionNps)
	assert.Equal(t, 3.0, fv.PuntuacionCsat)
	assert.Equal(t, 24.0, fv.TiempoResolucion)
	assert.Equal(t, 0.5, fv.TasaAperturaEmail)
	assert.Equal(t, "00000", fv.CodigoPostal)
	assert.Equal(t, 30, fv.Edad)
	assert.Equal(t, 0.0, fv.Latitud)
	assert.Equal(t, 0.0, fv.Longitud)
	assert.Equal(t, 0, fv.TicketsSoporte)
	assert.Equal(t, 0, fv.DiasDesdeUltimoContacto)
}

// TestProjectFeaturesDerived 测试派生特征计算
func TestProjectFeaturesDerived(t *testing.T) {
	lastContact := time.Now().Add(-72 * time.Hour)
	customer := &models.Customer{
		ID:           "cust-3",
		CodigoPostal: "10451",
		Edad:         intPtr(45),
		Subscription: &models.Subscription{
			CustomerID:       "cust-3",
			CuotaMensual:     floatPtr(80.0),
			IngresosTotales:  floatPtr(1600.0),
			MesesPermanencia: intPtr(20),
		},
		Metrics: &models.CustomerMetrics{
			CustomerID:            "cust-3",
			ConeccionesMensuales:  intPtr(10),
			PromedioConeccion:     floatPtr(2.5),
			UltimoContactoSoporte: &lastContact,
		},
	}

	fv, err := ProjectFeatures(customer)
	require.NoError(t, err)

	// 使用强度 = 10 × 2.5
	assert.Equal(t, 25.0, fv.IntensidadUso)
	// 财务负担比 = 80 / 1600
	assert.InDelta(t, 0.05, fv.RatioCargaFinanciera, 1e-9)
	// 72小时前的联系折算3天
	assert.Equal(t, 3, fv.DiasDesdeUltimoContacto)
	assert.Equal(t, "10451", fv.CodigoPostal)
	assert.Equal(t, 45, fv.Edad)
}

// TestProjectFeaturesZeroRevenue 测试总收入为0时财务负担比取0
func TestProjectFeaturesZeroRevenue(t *testing.T) {
	customer := &models.Customer{
		ID: "cust-4",
		Subscription: &models.Subscription{
			CustomerID:      "cust-4",
			CuotaMensual:    floatPtr(40.0),
			IngresosTotales: floatPtr(0.0),
		},
	}

	fv, err := ProjectFeatures(customer)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fv.RatioCargaFinanciera)
}

// TestProjectFeaturesFutureContact 测试未来时间的支持联系不产生负天数
func TestProjectFeaturesFutureContact(t *testing.T) {
	future := time.Now().Add(48 * time.Hour)
	customer := &models.Customer{
		ID:           "cust-5",
		Subscription: &models.Subscription{CustomerID: "cust-5"},
		Metrics: &models.CustomerMetrics{
			CustomerID:            "cust-5",
			UltimoContactoSoporte: &future,
		},
	}

	fv, err := ProjectFeatures(customer)
	require.NoError(t, err)
	assert.Equal(t, 0, fv.DiasDesdeUltimoContacto)
}
