package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// PowerFactorAnalyzer 功率因数分析器
// 基于功率快照评估站级与设备级功率因数，给出无功补偿容量与投资回收期
type PowerFactorAnalyzer struct {
	cfg *PluginConfig
}

// NewPowerFactorAnalyzer 创建功率因数分析器
func NewPowerFactorAnalyzer() *PowerFactorAnalyzer {
	return &PowerFactorAnalyzer{
		cfg: &PluginConfig{
			ID:             "power_factor_optimizer",
			Name:           "功率因数分析",
			Enabled:        true,
			ExecutionOrder: 30,
			MinDataDays:    7,
			Thresholds: map[string]float64{
				"target_pf":        0.95,
				"penalty_pf":       0.90, // 低于此值产生力调电费罚款
				"device_pf_floor":  0.85,
				"device_min_power": 5,    // kW
				"capacitor_cost":   75,   // 元/kVar
				"saving_per_kvar":  50,   // 元/kVar·年
			},
		},
	}
}

// Config 分析器配置
func (a *PowerFactorAnalyzer) Config() *PluginConfig { return a.cfg }

// Analyze 执行功率因数分析
func (a *PowerFactorAnalyzer) Analyze(actx *Context) ([]*models.EnergySuggestion, error) {
	if len(actx.PowerSnapshots) == 0 {
		return nil, nil
	}

	var suggestions []*models.EnergySuggestion
	if s := a.analyzeSite(actx); s != nil {
		suggestions = append(suggestions, s)
	}
	suggestions = append(suggestions, a.analyzeDevices(actx)...)
	return suggestions, nil
}

// analyzeSite 站级无功补偿建议
func (a *PowerFactorAnalyzer) analyzeSite(actx *Context) *models.EnergySuggestion {
	var pfSum, powerSum float64
	var n int
	for _, s := range actx.PowerSnapshots {
		if s.DeviceID != nil || s.PowerFactor <= 0 {
			continue
		}
		pfSum += normalizePF(s.PowerFactor)
		powerSum += s.ActivePower
		n++
	}
	if n == 0 {
		return nil
	}
	avgPF := pfSum / float64(n)
	avgPower := powerSum / float64(n)

	target := a.cfg.Threshold("target_pf", 0.95)
	if avgPF >= target {
		return nil
	}

	// 需补偿的无功容量 Q = P × (tanφ_cur − tanφ_target)
	compensation := avgPower * (tanFromPF(avgPF) - tanFromPF(target))
	if compensation <= 0 {
		return nil
	}

	capex := compensation * a.cfg.Threshold("capacitor_cost", 75)
	yearlySaving := compensation * a.cfg.Threshold("saving_per_kvar", 50)
	paybackMonths := 0.0
	if yearlySaving > 0 {
		paybackMonths = capex / yearlySaving * 12
	}

	priority := models.PriorityMedium
	if avgPF < a.cfg.Threshold("penalty_pf", 0.90) {
		priority = models.PriorityCritical
	}

	params, _ := json.Marshal(map[string]interface{}{
		"current_pf":        round2(avgPF),
		"target_pf":         target,
		"compensation_kvar": round2(compensation),
	})

	return &models.EnergySuggestion{
		Category:    "power_factor",
		Priority:    priority,
		Title:       "站级功率因数偏低，建议加装无功补偿",
		Description: fmt.Sprintf("平均功率因数 %.3f，低于目标 %.2f，需补偿约 %.0f kVar", avgPF, target, compensation),
		Detail: fmt.Sprintf("- 当前功率因数: %.3f\n- 目标功率因数: %.2f\n- 补偿容量: %.0f kVar\n- 投资估算: %.0f 元\n- 回收期: %.1f 个月",
			avgPF, target, compensation, capex, paybackMonths),
		EstimatedCostSaving: yearlySaving,
		Difficulty:          2,
		PaybackMonths:       round2(paybackMonths),
		Confidence:          85,
		Parameters:          params,
	}
}

// analyzeDevices 设备级功率因数偏低提示（取最严重的3台）
func (a *PowerFactorAnalyzer) analyzeDevices(actx *Context) []*models.EnergySuggestion {
	type devStat struct {
		pfSum, powerSum float64
		n               int
	}
	stats := make(map[int64]*devStat)
	for _, s := range actx.PowerSnapshots {
		if s.DeviceID == nil || s.PowerFactor <= 0 {
			continue
		}
		st := stats[*s.DeviceID]
		if st == nil {
			st = &devStat{}
			stats[*s.DeviceID] = st
		}
		st.pfSum += normalizePF(s.PowerFactor)
		st.powerSum += s.ActivePower
		st.n++
	}

	floor := a.cfg.Threshold("device_pf_floor", 0.85)
	minPower := a.cfg.Threshold("device_min_power", 5)
	target := a.cfg.Threshold("target_pf", 0.95)

	type candidate struct {
		device       *models.PowerDevice
		avgPF        float64
		compensation float64
	}
	var candidates []candidate
	for _, d := range actx.Devices {
		st := stats[d.ID]
		if st == nil || st.n == 0 {
			continue
		}
		avgPF := st.pfSum / float64(st.n)
		avgPower := st.powerSum / float64(st.n)
		if avgPF >= floor || avgPower <= minPower {
			continue
		}
		comp := avgPower * (tanFromPF(avgPF) - tanFromPF(target))
		if comp <= 0 {
			continue
		}
		candidates = append(candidates, candidate{device: d, avgPF: avgPF, compensation: comp})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].avgPF < candidates[j].avgPF
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	var suggestions []*models.EnergySuggestion
	for _, c := range candidates {
		related, _ := json.Marshal([]map[string]interface{}{
			{"device_id": c.device.ID, "device_name": c.device.DeviceName, "avg_pf": round2(c.avgPF)},
		})
		suggestions = append(suggestions, &models.EnergySuggestion{
			Category:    "power_factor",
			Priority:    models.PriorityMedium,
			Title:       fmt.Sprintf("设备 %s 功率因数偏低", c.device.DeviceName),
			Description: fmt.Sprintf("平均功率因数 %.3f，建议就地补偿约 %.1f kVar", c.avgPF, c.compensation),
			EstimatedCostSaving: c.compensation * a.cfg.Threshold("saving_per_kvar", 50),
			Difficulty:          2,
			Confidence:          80,
			RelatedDevices:      related,
		})
	}
	return suggestions
}

// tanFromPF 由功率因数求 tanφ
func tanFromPF(pf float64) float64 {
	if pf <= 0 || pf >= 1 {
		return 0
	}
	return math.Tan(math.Acos(pf))
}

// normalizePF 兼容按百分数上报的功率因数
func normalizePF(pf float64) float64 {
	if pf > 1 {
		return pf / 100
	}
	return pf
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
