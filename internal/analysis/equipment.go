package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// EquipmentAnalyzer 设备运行效率分析器
// 检查负载率过低/过高与设备效率偏低的情况
type EquipmentAnalyzer struct {
	cfg *PluginConfig
}

// NewEquipmentAnalyzer 创建设备效率分析器
func NewEquipmentAnalyzer() *EquipmentAnalyzer {
	return &EquipmentAnalyzer{
		cfg: &PluginConfig{
			ID:             "equipment_efficiency",
			Name:           "设备效率分析",
			Enabled:        true,
			ExecutionOrder: 60,
			MinDataDays:    7,
			Thresholds: map[string]float64{
				"low_load_rate":  0.30,
				"high_load_rate": 0.80,
				"min_efficiency": 0.85,
				"ups_target_eff": 0.95,
			},
		},
	}
}

// Config 分析器配置
func (a *EquipmentAnalyzer) Config() *PluginConfig { return a.cfg }

// Analyze 执行设备效率分析
func (a *EquipmentAnalyzer) Analyze(actx *Context) ([]*models.EnergySuggestion, error) {
	type devStat struct {
		powerSum float64
		n        int
	}
	stats := make(map[int64]*devStat)
	for _, s := range actx.PowerSnapshots {
		if s.DeviceID == nil {
			continue
		}
		st := stats[*s.DeviceID]
		if st == nil {
			st = &devStat{}
			stats[*s.DeviceID] = st
		}
		st.powerSum += s.ActivePower
		st.n++
	}

	lowRate := a.cfg.Threshold("low_load_rate", 0.30)
	highRate := a.cfg.Threshold("high_load_rate", 0.80)
	minEff := a.cfg.Threshold("min_efficiency", 0.85)

	var suggestions []*models.EnergySuggestion
	for _, d := range actx.Devices {
		if d.RatedPower <= 0 {
			continue
		}
		st := stats[d.ID]
		if st != nil && st.n > 0 {
			loadRate := st.powerSum / float64(st.n) / d.RatedPower
			if loadRate < lowRate {
				suggestions = append(suggestions, a.loadRateSuggestion(d, loadRate,
					"负载率过低", "长期轻载运行效率差，建议整合负载或停运",
					models.PriorityLow))
			} else if loadRate > highRate {
				suggestions = append(suggestions, a.loadRateSuggestion(d, loadRate,
					"负载率过高", "接近额定容量运行，存在过载与效率下降风险",
					models.PriorityHigh))
			}
		}

		eff := normalizeEfficiency(d.Efficiency)
		if eff > 0 && eff < minEff {
			target := minEff
			if d.DeviceType == "ups" {
				target = a.cfg.Threshold("ups_target_eff", 0.95)
			}
			related, _ := json.Marshal([]map[string]interface{}{
				{"device_id": d.ID, "device_name": d.DeviceName, "efficiency": round2(eff)},
			})
			suggestions = append(suggestions, &models.EnergySuggestion{
				Category:    "equipment",
				Priority:    models.PriorityMedium,
				Title:       fmt.Sprintf("设备 %s 效率偏低", d.DeviceName),
				Description: fmt.Sprintf("额定效率 %.0f%%，低于目标 %.0f%%，建议检修或更换高效机型", eff*100, target*100),
				Difficulty:  3,
				Confidence:  75,
				RelatedDevices: related,
			})
		}
	}
	return suggestions, nil
}

func (a *EquipmentAnalyzer) loadRateSuggestion(d *models.PowerDevice, loadRate float64, title, advice, priority string) *models.EnergySuggestion {
	related, _ := json.Marshal([]map[string]interface{}{
		{"device_id": d.ID, "device_name": d.DeviceName, "load_rate": round2(loadRate)},
	})
	return &models.EnergySuggestion{
		Category:    "equipment",
		Priority:    priority,
		Title:       fmt.Sprintf("设备 %s %s", d.DeviceName, title),
		Description: fmt.Sprintf("平均负载率 %.1f%%。%s", loadRate*100, advice),
		Difficulty:  2,
		Confidence:  75,
		RelatedDevices: related,
	}
}

// normalizeEfficiency 兼容按百分数存储的效率值
func normalizeEfficiency(eff float64) float64 {
	if eff > 1 {
		return eff / 100
	}
	return eff
}
