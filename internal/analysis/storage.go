package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// StorageAnalyzer 储能套利分析器
// 根据峰谷电量结构评估配置电池储能做峰谷套利的经济性
type StorageAnalyzer struct {
	cfg *PluginConfig
}

// NewStorageAnalyzer 创建储能分析器
func NewStorageAnalyzer() *StorageAnalyzer {
	return &StorageAnalyzer{
		cfg: &PluginConfig{
			ID:             "storage_arbitrage",
			Name:           "储能套利分析",
			Enabled:        true,
			ExecutionOrder: 40,
			MinDataDays:    30,
			Thresholds: map[string]float64{
				"ideal_peak_ratio":      0.30,
				"ideal_valley_ratio":    0.35,
				"min_storage_kwh":       100,  // 低于此规模不值得建
				"storage_cost_per_kwh":  1500, // 元/kWh
				"round_trip_efficiency": 0.85,
				"max_payback_years":     8,
			},
		},
	}
}

// Config 分析器配置
func (a *StorageAnalyzer) Config() *PluginConfig { return a.cfg }

// Analyze 执行储能经济性分析
func (a *StorageAnalyzer) Analyze(actx *Context) ([]*models.EnergySuggestion, error) {
	shares, dailyAvg := actx.PeriodShares()
	if dailyAvg == 0 {
		return nil, nil
	}

	peakShare := shares[models.PeriodPeak] + shares[models.PeriodSharp]
	idealPeak := a.cfg.Threshold("ideal_peak_ratio", 0.30)
	if peakShare <= idealPeak {
		return nil, nil
	}

	// 储能容量按每日峰时超额电量确定
	capacity := (peakShare - idealPeak) * dailyAvg
	if capacity < a.cfg.Threshold("min_storage_kwh", 100) {
		return nil, nil
	}

	efficiency := a.cfg.Threshold("round_trip_efficiency", 0.85)
	avgPeakPrice := (actx.Tariff.PriceFor(models.PeriodPeak) + actx.Tariff.PriceFor(models.PeriodSharp)) / 2
	valleyPrice := actx.Tariff.PriceFor(models.PeriodValley)

	// 每日套利 = 放电量×峰价 − 充电量×谷价，充电量 = 放电量/效率
	dailyDischarge := capacity * efficiency
	dailySaving := dailyDischarge*avgPeakPrice - capacity*valleyPrice
	if dailySaving <= 0 {
		return nil, nil
	}
	yearlySaving := dailySaving * 365

	capex := capacity * a.cfg.Threshold("storage_cost_per_kwh", 1500)
	paybackYears := capex / yearlySaving
	if paybackYears >= a.cfg.Threshold("max_payback_years", 8) {
		return nil, nil
	}

	params, _ := json.Marshal(map[string]interface{}{
		"storage_capacity_kwh": round2(capacity),
		"daily_discharge_kwh":  round2(dailyDischarge),
		"capex":                round2(capex),
		"payback_years":        round2(paybackYears),
	})

	return []*models.EnergySuggestion{{
		Category:    "storage",
		Priority:    models.PriorityMedium,
		Title:       "建议配置电池储能做峰谷套利",
		Description: fmt.Sprintf("建议容量 %.0f kWh，年收益约 %.0f 元，回收期 %.1f 年", capacity, yearlySaving, paybackYears),
		Detail: fmt.Sprintf("- 建议容量: %.0f kWh\n- 投资估算: %.0f 元\n- 年收益: %.0f 元\n- 回收期: %.1f 年\n- 循环效率: %.0f%%",
			capacity, capex, yearlySaving, paybackYears, efficiency*100),
		EstimatedCostSaving: yearlySaving,
		Difficulty:          4,
		PaybackMonths:       round2(paybackYears * 12),
		Confidence:          70,
		Parameters:          params,
	}}, nil
}
