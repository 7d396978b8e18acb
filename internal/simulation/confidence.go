package simulation

// 置信度档位
const (
	BandHigh    = "high"
	BandMedium  = "medium"
	BandLow     = "low"
	BandVeryLow = "very_low"
)

// Factors 置信度三因子，均为 0-1
type Factors struct {
	DataQuality        float64 `json:"data_quality"`        // 样本量与覆盖度
	AssumptionRisk     float64 `json:"assumption_risk"`     // 假设成立的把握
	ImplementationRisk float64 `json:"implementation_risk"` // 落地执行的把握
}

// Combine 三因子加权平均
func Combine(f Factors) float64 {
	return clamp(f.DataQuality*0.3+f.AssumptionRisk*0.3+f.ImplementationRisk*0.4, 0, 1)
}

// DataQualityFromSamples 由样本量估算数据质量因子
func DataQualityFromSamples(n int) float64 {
	if n <= 0 {
		return 0
	}
	return clamp(0.5+float64(n)/100, 0.5, 1.0)
}

// Band 置信度分档
func Band(confidence float64) string {
	switch {
	case confidence >= 0.85:
		return BandHigh
	case confidence >= 0.7:
		return BandMedium
	case confidence >= 0.5:
		return BandLow
	default:
		return BandVeryLow
	}
}
