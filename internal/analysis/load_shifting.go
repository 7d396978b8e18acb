package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// ShiftParameters 移峰建议的再仿真参数
type ShiftParameters struct {
	ShiftPower        float64 `json:"shift_power"`  // kW
	ShiftHours        float64 `json:"shift_hours"`  // 小时/日
	SourcePeriod      string  `json:"source_period"`
	TargetPeriod      string  `json:"target_period"`
	SelectedDeviceIDs []int64 `json:"selected_device_ids,omitempty"`
}

// LoadShiftAnalyzer 峰谷移荷分析器
// 站级时段占比、设备级可移容量、计量点级三个尺度识别可从高价时段
// 转移到低价时段的电量，并给出目标时窗
type LoadShiftAnalyzer struct {
	cfg *PluginConfig
}

// NewLoadShiftAnalyzer 创建移峰分析器
func NewLoadShiftAnalyzer() *LoadShiftAnalyzer {
	return &LoadShiftAnalyzer{
		cfg: &PluginConfig{
			ID:             "peak_valley_optimizer",
			Name:           "峰谷移荷分析",
			Enabled:        true,
			ExecutionOrder: 10,
			MinDataDays:    7,
			Thresholds: map[string]float64{
				"peak_ratio_threshold":    0.35, // 站级峰时占比阈值
				"target_peak_ratio":       0.30,
				"min_shift_amount":        50,   // kWh/日
				"shift_efficiency":        0.7,
				"device_min_power":        5,    // kW
				"min_device_shift_saving": 100,  // 元/年
				"valley_target_ratio":     0.30, // 谷时占比目标
			},
		},
	}
}

// Config 分析器配置
func (a *LoadShiftAnalyzer) Config() *PluginConfig { return a.cfg }

// Analyze 执行移峰分析
func (a *LoadShiftAnalyzer) Analyze(actx *Context) ([]*models.EnergySuggestion, error) {
	var suggestions []*models.EnergySuggestion

	shares, dailyAvg := actx.PeriodShares()
	if dailyAvg == 0 {
		return nil, nil
	}

	if s := a.analyzeSite(actx, shares, dailyAvg); s != nil {
		suggestions = append(suggestions, s)
	}
	suggestions = append(suggestions, a.analyzeDevices(actx, shares)...)
	suggestions = append(suggestions, a.analyzeMeters(actx)...)
	if s := a.analyzeValleyUnderuse(actx, shares, dailyAvg); s != nil {
		suggestions = append(suggestions, s)
	}

	return suggestions, nil
}

// analyzeSite 站级：峰时占比超阈值时建议整体移荷
func (a *LoadShiftAnalyzer) analyzeSite(actx *Context, shares map[string]float64, dailyAvg float64) *models.EnergySuggestion {
	peakShare := shares[models.PeriodPeak] + shares[models.PeriodSharp]
	threshold := a.cfg.Threshold("peak_ratio_threshold", 0.35)
	target := a.cfg.Threshold("target_peak_ratio", 0.30)
	if peakShare <= threshold {
		return nil
	}

	efficiency := a.cfg.Threshold("shift_efficiency", 0.7)
	shiftableDaily := (peakShare - target) * dailyAvg * efficiency
	if shiftableDaily < a.cfg.Threshold("min_shift_amount", 50) {
		return nil
	}

	avgPeakPrice := (actx.Tariff.PriceFor(models.PeriodPeak) + actx.Tariff.PriceFor(models.PeriodSharp)) / 2
	valleyPrice := actx.Tariff.PriceFor(models.PeriodValley)
	dailySaving := shiftableDaily * (avgPeakPrice - valleyPrice)
	yearlySaving := dailySaving * 365

	params, _ := json.Marshal(ShiftParameters{
		ShiftPower:   shiftableDaily / 8, // 假设8小时移荷窗口
		ShiftHours:   8,
		SourcePeriod: models.PeriodPeak,
		TargetPeriod: models.PeriodValley,
	})

	return &models.EnergySuggestion{
		Category:    "load_shift",
		Priority:    models.PriorityHigh,
		Title:       "峰时用电占比偏高，建议整体移峰填谷",
		Description: fmt.Sprintf("峰时电量占比 %.1f%%，超过目标 %.0f%%，日均可转移电量约 %.0f kWh", peakShare*100, target*100, shiftableDaily),
		Detail: fmt.Sprintf("- 峰时占比: %.1f%%\n- 目标占比: %.0f%%\n- 日均可转移: %.0f kWh\n- 峰谷价差: %.2f 元/kWh",
			peakShare*100, target*100, shiftableDaily, avgPeakPrice-valleyPrice),
		EstimatedSaving:     shiftableDaily * 365,
		EstimatedCostSaving: yearlySaving,
		Difficulty:          3,
		Confidence:          85,
		Parameters:          params,
	}
}

// analyzeDevices 设备级：逐设备估算可移容量，给出移出/移入时窗
func (a *LoadShiftAnalyzer) analyzeDevices(actx *Context, shares map[string]float64) []*models.EnergySuggestion {
	peakShare := shares[models.PeriodPeak] + shares[models.PeriodSharp]
	valleyShare := shares[models.PeriodValley] + shares[models.PeriodDeepValley]
	minPower := a.cfg.Threshold("device_min_power", 5)
	efficiency := a.cfg.Threshold("shift_efficiency", 0.7)

	peakPrice := actx.Tariff.PriceFor(models.PeriodPeak)
	valleyPrice := actx.Tariff.PriceFor(models.PeriodValley)

	type candidate struct {
		device         *models.PowerDevice
		shiftableDaily float64
		yearlySaving   float64
		fromHours      []int
		toHours        []int
	}

	var candidates []candidate
	for _, d := range actx.ShiftableDevices() {
		if d.RatedPower < minPower {
			continue
		}
		cfg := actx.ShiftConfigs[d.ID]

		// 峰时日电量估算与谷时可承接容量二者取小
		peakDaily := d.RatedPower * peakShare * 24 * efficiency
		valleyCapacity := d.RatedPower * (1 - valleyShare) * 8
		shiftable := math.Min(peakDaily*cfg.ShiftablePowerRatio, valleyCapacity)
		if shiftable < 10 {
			continue
		}

		yearly := shiftable * (peakPrice - valleyPrice) * 365
		if yearly < a.cfg.Threshold("min_device_shift_saving", 100) {
			continue
		}

		candidates = append(candidates, candidate{
			device:         d,
			shiftableDaily: shiftable,
			yearlySaving:   yearly,
			fromHours:      shiftSourceHours(cfg),
			toHours:        shiftTargetHours(cfg),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].yearlySaving > candidates[j].yearlySaving
	})
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}

	var suggestions []*models.EnergySuggestion
	var deviceIDs []int64
	var totalYearly, totalShiftable float64
	for _, c := range candidates {
		deviceIDs = append(deviceIDs, c.device.ID)
		totalYearly += c.yearlySaving
		totalShiftable += c.shiftableDaily

		params, _ := json.Marshal(ShiftParameters{
			ShiftPower:        c.shiftableDaily / 8,
			ShiftHours:        8,
			SourcePeriod:      models.PeriodPeak,
			TargetPeriod:      models.PeriodValley,
			SelectedDeviceIDs: []int64{c.device.ID},
		})
		related, _ := json.Marshal([]map[string]interface{}{
			{"device_id": c.device.ID, "device_name": c.device.DeviceName, "rated_power": c.device.RatedPower},
		})

		suggestions = append(suggestions, &models.EnergySuggestion{
			Category:    "load_shift",
			Priority:    models.PriorityMedium,
			Title:       fmt.Sprintf("设备 %s 移峰运行", c.device.DeviceName),
			Description: fmt.Sprintf("日均可移电量 %.0f kWh，建议 %v 时段运行移至 %v 时段", c.shiftableDaily, c.fromHours, c.toHours),
			EstimatedSaving:     c.shiftableDaily * 365,
			EstimatedCostSaving: c.yearlySaving,
			Difficulty:          2,
			Confidence:          80,
			RelatedDevices:      related,
			Parameters:          params,
		})
	}

	// 三台以上可移设备时追加汇总建议
	if len(candidates) >= 3 {
		params, _ := json.Marshal(ShiftParameters{
			ShiftPower:        totalShiftable / 8,
			ShiftHours:        8,
			SourcePeriod:      models.PeriodPeak,
			TargetPeriod:      models.PeriodValley,
			SelectedDeviceIDs: deviceIDs,
		})
		suggestions = append(suggestions, &models.EnergySuggestion{
			Category:    "load_shift",
			Priority:    models.PriorityHigh,
			Title:       fmt.Sprintf("%d 台设备联合移峰方案", len(candidates)),
			Description: fmt.Sprintf("合计日均可移电量 %.0f kWh，年节省约 %.0f 元", totalShiftable, totalYearly),
			EstimatedSaving:     totalShiftable * 365,
			EstimatedCostSaving: totalYearly,
			Difficulty:          3,
			Confidence:          85,
			Parameters:          params,
		})
	}

	return suggestions
}

// analyzeMeters 计量点级：逐计量点检查峰时占比
func (a *LoadShiftAnalyzer) analyzeMeters(actx *Context) []*models.EnergySuggestion {
	type meterStat struct {
		total float64
		peak  float64
		days  int
	}
	stats := make(map[int64]*meterStat)
	for _, e := range actx.EnergyDaily {
		if e.MeterPointID == nil {
			continue
		}
		st := stats[*e.MeterPointID]
		if st == nil {
			st = &meterStat{}
			stats[*e.MeterPointID] = st
		}
		st.total += e.TotalEnergy
		st.peak += e.SharpEnergy + e.PeakEnergy
		st.days++
	}

	avgPeakPrice := (actx.Tariff.PriceFor(models.PeriodPeak) + actx.Tariff.PriceFor(models.PeriodSharp)) / 2
	valleyPrice := actx.Tariff.PriceFor(models.PeriodValley)

	var suggestions []*models.EnergySuggestion
	for _, mp := range actx.MeterPoints {
		st := stats[mp.ID]
		if st == nil || st.total == 0 || st.days == 0 {
			continue
		}
		ratio := st.peak / st.total
		if ratio <= 0.40 {
			continue
		}
		// 按峰时电量30%可移估算
		shiftableDaily := st.peak / float64(st.days) * 0.30
		yearly := shiftableDaily * (avgPeakPrice - valleyPrice) * 365
		if yearly <= 5000 {
			continue
		}

		params, _ := json.Marshal(ShiftParameters{
			ShiftPower:   shiftableDaily / 8,
			ShiftHours:   8,
			SourcePeriod: models.PeriodPeak,
			TargetPeriod: models.PeriodValley,
		})
		suggestions = append(suggestions, &models.EnergySuggestion{
			Category:    "load_shift",
			Priority:    models.PriorityMedium,
			Title:       fmt.Sprintf("计量点 %s 峰时占比偏高", mp.MeterName),
			Description: fmt.Sprintf("峰时占比 %.1f%%，按30%%可移估算，年节省约 %.0f 元", ratio*100, yearly),
			EstimatedSaving:     shiftableDaily * 365,
			EstimatedCostSaving: yearly,
			Difficulty:          3,
			Confidence:          75,
			Parameters:          params,
		})
	}
	return suggestions
}

// analyzeValleyUnderuse 谷时利用不足分析
func (a *LoadShiftAnalyzer) analyzeValleyUnderuse(actx *Context, shares map[string]float64, dailyAvg float64) *models.EnergySuggestion {
	valleyShare := shares[models.PeriodValley] + shares[models.PeriodDeepValley]
	target := a.cfg.Threshold("valley_target_ratio", 0.30)
	if valleyShare >= 0.8*target {
		return nil
	}

	// 保守按缺口的一半估算可填谷电量
	gapDaily := (target - valleyShare) * dailyAvg * 0.5
	flatPrice := actx.Tariff.PriceFor(models.PeriodFlat)
	valleyPrice := actx.Tariff.PriceFor(models.PeriodValley)
	yearly := gapDaily * (flatPrice - valleyPrice) * 365

	params, _ := json.Marshal(ShiftParameters{
		ShiftPower:   gapDaily / 8,
		ShiftHours:   8,
		SourcePeriod: models.PeriodFlat,
		TargetPeriod: models.PeriodValley,
	})

	return &models.EnergySuggestion{
		Category:    "load_shift",
		Priority:    models.PriorityLow,
		Title:       "谷时电量利用不足",
		Description: fmt.Sprintf("谷时占比 %.1f%%，低于目标 %.0f%%，可安排可延迟负载至谷时运行", valleyShare*100, target*100),
		EstimatedSaving:     gapDaily * 365,
		EstimatedCostSaving: yearly,
		Difficulty:          2,
		Confidence:          75,
		Parameters:          params,
	}
}

// shiftSourceHours 移出时窗：[8,22) 去掉禁止时段
func shiftSourceHours(cfg *models.DeviceShiftConfig) []int {
	forbidden := parseHours(cfg.ForbiddenShiftHours)
	var hours []int
	for h := 8; h < 22; h++ {
		if !forbidden[h] {
			hours = append(hours, h)
		}
	}
	return hours
}

// shiftTargetHours 移入时窗：允许时段与 [0,8) 的交集，未配置允许时段时取 [0,8)
func shiftTargetHours(cfg *models.DeviceShiftConfig) []int {
	allowed := parseHours(cfg.AllowedShiftHours)
	var hours []int
	for h := 0; h < 8; h++ {
		if len(allowed) == 0 || allowed[h] {
			hours = append(hours, h)
		}
	}
	return hours
}

func parseHours(raw json.RawMessage) map[int]bool {
	result := make(map[int]bool)
	if len(raw) == 0 {
		return result
	}
	var hours []int
	if err := json.Unmarshal(raw, &hours); err != nil {
		return result
	}
	for _, h := range hours {
		result[h] = true
	}
	return result
}
