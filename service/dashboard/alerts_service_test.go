/*
 * @module service/dashboard/alerts_service_test
 * @description 关键预警服务单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 内存数据库准备 -> 预警推导 -> 条件与计数验证
 * @rules 条件不满足的预警不出现在列表中；计数与标题插值一致
 * @dependencies testing, stretchr/testify, churn-service/testutil
 */

package dashboard

import (
	"context"
	"testing"

	"churn-service/service/event"
	"churn-service/service/prediction"
	"churn-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAlertsService(t *testing.T, ticketThreshold int) (*AlertsService, *testutil.TestDataFactory) {
	t.Helper()
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)

	svc := NewAlertsService(tdb.DB, prediction.NewStore(tdb.DB), event.NewPublisher(nil, ""), ticketThreshold)
	return svc, testutil.NewTestDataFactory(tdb.DB)
}

// TestAlertsEmptyDatabase 测试空库不产生任何预警
func TestAlertsEmptyDatabase(t *testing.T) {
	svc, _ := newTestAlertsService(t, 6)

	alerts, err := svc.GetCriticalAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

// TestAlertHighTickets 测试高工单预警的阈值边界
func TestAlertHighTickets(t *testing.T) {
	svc, factory := newTestAlertsService(t, 6)

	atThreshold := factory.CreateCustomer()
	factory.CreateMetrics(atThreshold.ID, testutil.WithTickets(6))

	below := factory.CreateCustomer()
	factory.CreateMetrics(below.ID, testutil.WithTickets(5))

	alerts, err := svc.GetCriticalAlerts(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, "high_tickets", alerts[0].Type)
	assert.Equal(t, int64(1), alerts[0].Count)
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Contains(t, alerts[0].Title, "1 个客户")
}

// TestAlertMonthlyContractsAtRisk 测试风险中的月付合同预警
func TestAlertMonthlyContractsAtRisk(t *testing.T) {
	svc, factory := newTestAlertsService(t, 6)

	// 月付 + 最新预测High：计入
	atRisk := factory.CreateCustomer()
	factory.CreateSubscription(atRisk.ID, testutil.WithContrato("Mensual"), testutil.WithTenure(30))
	factory.CreatePrediction(atRisk.ID, 0.9)

	// 月付 + 最新预测Low：不计入
	safe := factory.CreateCustomer()
	factory.CreateSubscription(safe.ID, testutil.WithContrato("Mensual"), testutil.WithTenure(30))
	factory.CreatePrediction(safe.ID, 0.1)

	// 年付 + High：合同类型不匹配，不计入
	annual := factory.CreateCustomer()
	factory.CreateSubscription(annual.ID, testutil.WithContrato("Anual"), testutil.WithTenure(30))
	factory.CreatePrediction(annual.ID, 0.9)

	// 月付无预测：不计入
	noPrediction := factory.CreateCustomer()
	factory.CreateSubscription(noPrediction.ID, testutil.WithContrato("Mensual"), testutil.WithTenure(30))

	alerts, err := svc.GetCriticalAlerts(context.Background())
	require.NoError(t, err)

	var monthly *CriticalAlert
	for i := range alerts {
		if alerts[i].Type == "monthly_contracts" {
			monthly = &alerts[i]
		}
	}
	require.NotNil(t, monthly)
	assert.Equal(t, int64(1), monthly.Count)
	assert.Equal(t, "critical", monthly.Severity)
}

// TestAlertOnboarding 测试入网关键期预警的边界
func TestAlertOnboarding(t *testing.T) {
	svc, factory := newTestAlertsService(t, 6)

	inside := factory.CreateCustomer()
	factory.CreateSubscription(inside.ID, testutil.WithTenure(12))

	outside := factory.CreateCustomer()
	factory.CreateSubscription(outside.ID, testutil.WithTenure(13))

	alerts, err := svc.GetCriticalAlerts(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, "onboarding", alerts[0].Type)
	assert.Equal(t, int64(1), alerts[0].Count)
	assert.Equal(t, "medium", alerts[0].Severity)
}

// TestAlertsCombined 测试多条预警同时成立
func TestAlertsCombined(t *testing.T) {
	svc, factory := newTestAlertsService(t, 6)

	customer := factory.CreateCustomer()
	factory.CreateSubscription(customer.ID, testutil.WithContrato("Mensual"), testutil.WithTenure(6))
	factory.CreateMetrics(customer.ID, testutil.WithTickets(9))
	factory.CreatePrediction(customer.ID, 0.5) // Medium也计入月付风险

	alerts, err := svc.GetCriticalAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	types := make([]string, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, "high_tickets")
	assert.Contains(t, types, "monthly_contracts")
	assert.Contains(t, types, "onboarding")
}
