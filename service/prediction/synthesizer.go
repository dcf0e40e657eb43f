/*
 * @module service/prediction/synthesizer
 * @description 地理风险合成器：在客户没有真实预测时，按客户ID稳定哈希与行政区分布表生成确定性的兜底风险值
 * @architecture 分层架构 - 纯函数工具
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 客户ID -> FNV稳定哈希 -> 行政区三段分布表选段 -> 概率裁剪 -> 风险分级
 * @rules 同一客户ID与行政区必须得到相同结果；不使用随机数；合成结果必须带synthesized标记与真实预测区分
 * @dependencies hash/fnv
 * @refs service/dashboard/dashboard_service.go
 */

package prediction

import (
	"hash/fnv"
	"strings"
)

// SynthesizedRisk 合成的兜底风险值，synthesized恒为true
type SynthesizedRisk struct {
	Probability float64   `json:"probability"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Synthesized bool      `json:"synthesized"`
}

// boroughDistribution 行政区三段分布：hash mod 100 落在 [0,high) 为高风险段，
// [high,medium) 为中风险段，其余为低风险段
type boroughDistribution struct {
	highBand   uint32
	mediumBand uint32
}

// 低收入/高密度行政区的高风险占比更高
var boroughDistributions = map[string]boroughDistribution{
	"bronx":         {highBand: 5, mediumBand: 30},
	"brooklyn":      {highBand: 4, mediumBand: 28},
	"queens":        {highBand: 3, mediumBand: 25},
	"staten island": {highBand: 2, mediumBand: 22},
	"manhattan":     {highBand: 2, mediumBand: 20},
}

// SynthesizeRisk 为没有真实预测的客户生成确定性的兜底风险
// 表中不存在的行政区只产生低风险段结果
func SynthesizeRisk(customerID, borough string) SynthesizedRisk {
	h := stableHash(customerID)
	band := h % 100

	var probability float64
	dist, known := boroughDistributions[strings.ToLower(strings.TrimSpace(borough))]

	switch {
	case known && band < dist.highBand:
		probability = 0.70 + float64(h%21)/100.0 // 70%-90%
	case known && band < dist.mediumBand:
		probability = 0.35 + float64(h%21)/100.0 // 35%-55%
	default:
		probability = 0.10 + float64(h%16)/100.0 // 10%-25%
	}

	probability = ClampProbability(probability)

	return SynthesizedRisk{
		Probability: probability,
		RiskLevel:   ClassifyValue(probability),
		Synthesized: true,
	}
}

// stableHash 客户ID的稳定哈希，同一部署内相同输入恒定相同输出
func stableHash(customerID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	return h.Sum32()
}
