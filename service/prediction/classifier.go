/*
 * @module service/prediction/classifier
 * @description 风险分级器：将流失概率映射为离散风险等级，并把多语言等级标签归一化为英文
 * @architecture 分层架构 - 纯函数工具
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 概率 -> 固定阈值分级 -> 英文等级标签
 * @rules 阈值固定：<0.30为Low，[0.30,0.70)为Medium，>=0.70为High；缺失概率默认Medium；纯函数，永不报错
 * @dependencies golang.org/x/text
 * @refs service/models/prediction.go
 */

package prediction

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RiskLevel 离散风险等级
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Classify 将流失概率映射为风险等级，缺失概率默认Medium
func Classify(probability *float64) RiskLevel {
	if probability == nil {
		return RiskMedium
	}
	return ClassifyValue(*probability)
}

// ClassifyValue 按固定阈值分级
func ClassifyValue(probability float64) RiskLevel {
	switch {
	case probability < 0.30:
		return RiskLow
	case probability < 0.70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ClampProbability 将概率裁剪到[0,1]
func ClampProbability(probability float64) float64 {
	if probability < 0 {
		return 0
	}
	if probability > 1 {
		return 1
	}
	return probability
}

// 去掉变音符号后小写，使"Médio"/"MEDIO"等拼写都能命中
var labelFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeRiskLabel 将任意语言拼写的风险等级标签归一化为英文
// 无法识别的标签原样返回，空标签默认Medium
func NormalizeRiskLabel(label string) string {
	if label == "" {
		return string(RiskMedium)
	}

	folded, _, err := transform.String(labelFolder, label)
	if err != nil {
		folded = label
	}

	switch strings.ToLower(strings.TrimSpace(folded)) {
	case "alto", "high", "alta":
		return string(RiskHigh)
	case "medio", "medium", "media":
		return string(RiskMedium)
	case "bajo", "low", "baixo", "baja":
		return string(RiskLow)
	default:
		return label
	}
}

// NextBestAction 根据主要流失因素给出建议动作
func NextBestAction(mainFactor string) string {
	switch strings.ToLower(strings.TrimSpace(mainFactor)) {
	case "precio alto", "high price":
		return "Ofrecer descuento del 20%"
	case "baja actividad", "low activity":
		return "Ofrecer capacitación gratuita"
	case "falla técnica", "technical issue":
		return "Asignar soporte técnico prioritario"
	case "competencia", "competition":
		return "Mostrar ventajas competitivas"
	case "servicio limitado", "limited service":
		return "Ofrecer upgrade de plan"
	case "":
		return "Contactar al cliente"
	default:
		return "Contactar para entender necesidades"
	}
}
