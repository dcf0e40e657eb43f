/*
 * @module service/models/customer_test
 * @description 客户模型派生方法单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 构造模型 -> 调用派生方法 -> 验证分档
 * @rules 验证密度风险系数、收入档位、在网分组与增值服务计数
 * @dependencies testing, stretchr/testify
 */

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intP(v int) *int           { return &v }
func floatP(v float64) *float64 { return &v }
func strP(v string) *string     { return &v }

// TestBoroughRisk 测试人口密度到风险系数的分档
func TestBoroughRisk(t *testing.T) {
	assert.Equal(t, 0.0, (&Customer{}).BoroughRisk())
	assert.Equal(t, 0.25, (&Customer{DensidadPoblacional: floatP(10000)}).BoroughRisk())
	assert.Equal(t, 0.50, (&Customer{DensidadPoblacional: floatP(20000)}).BoroughRisk())
	assert.Equal(t, 0.75, (&Customer{DensidadPoblacional: floatP(35000)}).BoroughRisk())
}

// TestHighDensityArea 测试高密度区域标志
func TestHighDensityArea(t *testing.T) {
	assert.Equal(t, 0, (&Customer{}).HighDensityArea())
	assert.Equal(t, 0, (&Customer{DensidadPoblacional: floatP(30000)}).HighDensityArea())
	assert.Equal(t, 1, (&Customer{DensidadPoblacional: floatP(30001)}).HighDensityArea())
}

// TestIncomeBracket 测试收入档位
func TestIncomeBracket(t *testing.T) {
	assert.Equal(t, "Medium", (&Customer{}).IncomeBracket())
	assert.Equal(t, "Low", (&Customer{IngresoMediano: floatP(40000)}).IncomeBracket())
	assert.Equal(t, "Medium", (&Customer{IngresoMediano: floatP(60000)}).IncomeBracket())
	assert.Equal(t, "High", (&Customer{IngresoMediano: floatP(90000)}).IncomeBracket())
}

// TestHasCoordinates 测试坐标完整性判断
func TestHasCoordinates(t *testing.T) {
	assert.False(t, (&Customer{}).HasCoordinates())
	assert.False(t, (&Customer{Latitud: floatP(40.7)}).HasCoordinates())
	assert.True(t, (&Customer{Latitud: floatP(40.7), Longitud: floatP(-74.0)}).HasCoordinates())
}

// TestTenureGroup 测试在网时长分组边界
func TestTenureGroup(t *testing.T) {
	assert.Equal(t, "0-12", (&Subscription{}).TenureGroup()) // 缺失默认1个月
	assert.Equal(t, "0-12", (&Subscription{MesesPermanencia: intP(12)}).TenureGroup())
	assert.Equal(t, "13-24", (&Subscription{MesesPermanencia: intP(13)}).TenureGroup())
	assert.Equal(t, "25-48", (&Subscription{MesesPermanencia: intP(48)}).TenureGroup())
	assert.Equal(t, "49+", (&Subscription{MesesPermanencia: intP(49)}).TenureGroup())
}

// TestPremiumServiceCount 测试增值服务计数
func TestPremiumServiceCount(t *testing.T) {
	assert.Equal(t, 0, (&Subscription{}).PremiumServiceCount())

	sub := &Subscription{
		SeguridadOnline: strP("Si"),
		RespaldoOnline:  strP("No"),
		StreamingTV:     strP("Si"),
		SoporteTecnico:  strP("Sin servicio"),
	}
	assert.Equal(t, 2, sub.PremiumServiceCount())
}
