package analysis

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// PUEAnalyzer PUE能效分析器
// 评估机房整体PUE水平、波动性与制冷占比
type PUEAnalyzer struct {
	cfg *PluginConfig
}

// NewPUEAnalyzer 创建PUE分析器
func NewPUEAnalyzer() *PUEAnalyzer {
	return &PUEAnalyzer{
		cfg: &PluginConfig{
			ID:             "pue_optimizer",
			Name:           "PUE能效分析",
			Enabled:        true,
			ExecutionOrder: 50,
			MinDataDays:    7,
			Thresholds: map[string]float64{
				"target_pue":        1.4,
				"excellent_pue":     1.2,
				"poor_pue":          1.8,
				"cooling_threshold": 0.4,  // 制冷功率占比告警线
				"stability_std":     0.15, // PUE标准差告警线
			},
		},
	}
}

// Config 分析器配置
func (a *PUEAnalyzer) Config() *PluginConfig { return a.cfg }

// Analyze 执行PUE分析
func (a *PUEAnalyzer) Analyze(actx *Context) ([]*models.EnergySuggestion, error) {
	if len(actx.PUESamples) == 0 {
		return nil, nil
	}

	var pueSum, pueSqSum, totalPowerSum, coolingSum float64
	n := 0
	for _, s := range actx.PUESamples {
		if s.PUE <= 0 {
			continue
		}
		pueSum += s.PUE
		pueSqSum += s.PUE * s.PUE
		totalPowerSum += s.TotalPower
		coolingSum += s.CoolingPower
		n++
	}
	if n == 0 {
		return nil, nil
	}

	avgPUE := pueSum / float64(n)
	avgTotalPower := totalPowerSum / float64(n)
	std := 0.0
	if n > 1 {
		variance := (pueSqSum - pueSum*pueSum/float64(n)) / float64(n-1)
		if variance > 0 {
			std = math.Sqrt(variance)
		}
	}

	var suggestions []*models.EnergySuggestion

	target := a.cfg.Threshold("target_pue", 1.4)
	if avgPUE > target {
		// 年可节电量：按降到目标PUE、80%可达性折算
		yearlySaving := avgTotalPower * 24 * 365 * (avgPUE - target) / avgPUE * 0.8
		priority := models.PriorityMedium
		if avgPUE > a.cfg.Threshold("poor_pue", 1.8) {
			priority = models.PriorityHigh
		}
		avgPrice := actx.Tariff.WeightedAvgPrice()
		params, _ := json.Marshal(map[string]interface{}{
			"current_pue": round2(avgPUE),
			"target_pue":  target,
		})
		suggestions = append(suggestions, &models.EnergySuggestion{
			Category:    "pue",
			Priority:    priority,
			Title:       "PUE高于目标值",
			Description: fmt.Sprintf("平均PUE %.2f，目标 %.1f，优化制冷与配电可年节电约 %.0f kWh", avgPUE, target, yearlySaving),
			Detail: fmt.Sprintf("- 平均PUE: %.2f\n- 目标PUE: %.1f\n- 平均总功率: %.1f kW\n- 预计年节电: %.0f kWh",
				avgPUE, target, avgTotalPower, yearlySaving),
			EstimatedSaving:     yearlySaving,
			EstimatedCostSaving: yearlySaving * avgPrice,
			Difficulty:          4,
			Confidence:          75,
			Parameters:          params,
		})
	}

	if std > a.cfg.Threshold("stability_std", 0.15) {
		// 波动大通常意味着制冷控制策略粗放，按5%节能潜力估算
		yearlySaving := avgTotalPower * 24 * 365 * 0.05
		avgPrice := actx.Tariff.WeightedAvgPrice()
		suggestions = append(suggestions, &models.EnergySuggestion{
			Category:    "pue",
			Priority:    models.PriorityLow,
			Title:       "PUE波动偏大",
			Description: fmt.Sprintf("PUE标准差 %.3f，建议检查制冷联动与温控策略", std),
			EstimatedSaving:     yearlySaving,
			EstimatedCostSaving: yearlySaving * avgPrice,
			Difficulty:          3,
			Confidence:          70,
		})
	}

	if totalPowerSum > 0 {
		coolingShare := coolingSum / totalPowerSum
		if coolingShare > a.cfg.Threshold("cooling_threshold", 0.4) {
			suggestions = append(suggestions, &models.EnergySuggestion{
				Category:    "pue",
				Priority:    models.PriorityMedium,
				Title:       "制冷功率占比偏高",
				Description: fmt.Sprintf("制冷占总功率 %.1f%%，建议核查冷通道封闭与设定温度", coolingShare*100),
				Difficulty:          3,
				Confidence:          80,
			})
		}
	}

	return suggestions, nil
}
