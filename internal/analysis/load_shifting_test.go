package analysis_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proecheng/dcim-platform-sub000/internal/analysis"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// defaultTariff 空区间快照，PriceFor 回落缺省电价表（尖1.5 峰1.2 平0.8 谷0.4）
func defaultTariff() *tariff.Snapshot {
	return &tariff.Snapshot{Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)}
}

// dailyRows 构造 n 天日能耗，各时段电量逐日相同
func dailyRows(n int, peak, normal, valley float64) []*models.EnergyDaily {
	rows := make([]*models.EnergyDaily, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, &models.EnergyDaily{
			StatDate:     time.Date(2025, 5, 1+i, 0, 0, 0, 0, time.Local),
			TotalEnergy:  peak + normal + valley,
			PeakEnergy:   peak,
			NormalEnergy: normal,
			ValleyEnergy: valley,
		})
	}
	return rows
}

func TestLoadShift_SiteSuggestion(t *testing.T) {
	a := analysis.NewLoadShiftAnalyzer()
	actx := &analysis.Context{
		EnergyDaily: dailyRows(10, 900, 600, 500), // 峰占比45%
		Tariff:      defaultTariff(),
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Equal(t, "load_shift", s.Category)
	assert.Equal(t, models.PriorityHigh, s.Priority)
	assert.Equal(t, 3, s.Difficulty)
	assert.Equal(t, float64(85), s.Confidence)

	// 可移电量 = (45% - 30%) × 2000 × 0.7 = 210 kWh/日
	// 峰谷价差取峰尖均价与谷价之差 = (1.2+1.5)/2 - 0.4 = 0.95
	assert.InDelta(t, 210*365, s.EstimatedSaving, 0.001)
	assert.InDelta(t, 210*0.95*365, s.EstimatedCostSaving, 0.001)

	var params analysis.ShiftParameters
	require.NoError(t, json.Unmarshal(s.Parameters, &params))
	assert.InDelta(t, 26.25, params.ShiftPower, 0.001) // 210/8
	assert.Equal(t, float64(8), params.ShiftHours)
	assert.Equal(t, models.PeriodPeak, params.SourcePeriod)
	assert.Equal(t, models.PeriodValley, params.TargetPeriod)
}

func TestLoadShift_NoSuggestionWhenBalanced(t *testing.T) {
	a := analysis.NewLoadShiftAnalyzer()
	actx := &analysis.Context{
		EnergyDaily: dailyRows(10, 600, 800, 600), // 峰30% 谷30%
		Tariff:      defaultTariff(),
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestLoadShift_ValleyUnderuse(t *testing.T) {
	a := analysis.NewLoadShiftAnalyzer()
	actx := &analysis.Context{
		EnergyDaily: dailyRows(10, 300, 600, 100), // 谷占比仅10%
		Tariff:      defaultTariff(),
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Equal(t, models.PriorityLow, s.Priority)
	assert.Equal(t, float64(75), s.Confidence)

	// 缺口折半 = (30% - 10%) × 1000 × 0.5 = 100 kWh/日，按平谷价差0.4估算
	assert.InDelta(t, 100*365, s.EstimatedSaving, 0.001)
	assert.InDelta(t, 100*0.4*365, s.EstimatedCostSaving, 0.001)

	var params analysis.ShiftParameters
	require.NoError(t, json.Unmarshal(s.Parameters, &params))
	assert.Equal(t, models.PeriodFlat, params.SourcePeriod)
	assert.Equal(t, models.PeriodValley, params.TargetPeriod)
	assert.InDelta(t, 12.5, params.ShiftPower, 0.001)
}

func TestLoadShift_DeviceSuggestions(t *testing.T) {
	a := analysis.NewLoadShiftAnalyzer()
	actx := &analysis.Context{
		EnergyDaily: dailyRows(10, 900, 600, 500),
		Devices: []*models.PowerDevice{
			{ID: 1, DeviceCode: "CH-001", DeviceName: "冷机1号", RatedPower: 100},
			{ID: 2, DeviceCode: "PUMP-001", DeviceName: "小水泵", RatedPower: 3},   // 低于最小功率
			{ID: 3, DeviceCode: "UPS-001", DeviceName: "UPS主机", RatedPower: 200}, // 关键负载
		},
		ShiftConfigs: map[int64]*models.DeviceShiftConfig{
			1: {DeviceID: 1, IsShiftable: true, ShiftablePowerRatio: 0.5},
			2: {DeviceID: 2, IsShiftable: true, ShiftablePowerRatio: 0.8},
			3: {DeviceID: 3, IsShiftable: true, ShiftablePowerRatio: 0.6, IsCritical: true},
		},
		Tariff: defaultTariff(),
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	require.Len(t, suggestions, 2) // 站级 + 冷机1号

	dev := suggestions[1]
	assert.Equal(t, models.PriorityMedium, dev.Priority)
	assert.Equal(t, float64(80), dev.Confidence)
	assert.Contains(t, dev.Title, "冷机1号")

	// min(100×45%×24×0.7×0.5, 100×75%×8) = min(378, 600) = 378 kWh/日
	assert.InDelta(t, 378*365, dev.EstimatedSaving, 0.001)
	assert.InDelta(t, 378*(1.2-0.4)*365, dev.EstimatedCostSaving, 0.001)

	var params analysis.ShiftParameters
	require.NoError(t, json.Unmarshal(dev.Parameters, &params))
	assert.Equal(t, []int64{1}, params.SelectedDeviceIDs)
	assert.InDelta(t, 47.25, params.ShiftPower, 0.001)
}

func TestLoadShift_MeterSuggestion(t *testing.T) {
	meterID := int64(3)
	rows := dailyRows(10, 500, 200, 300)
	for _, r := range rows {
		id := meterID
		r.MeterPointID = &id
	}

	a := analysis.NewLoadShiftAnalyzer()
	actx := &analysis.Context{
		EnergyDaily: rows,
		MeterPoints: []*models.MeterPoint{
			{ID: meterID, MeterCode: "M-003", MeterName: "3号变压器"},
		},
		Tariff: defaultTariff(),
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	require.Len(t, suggestions, 2) // 站级（峰占比50%）+ 计量点

	m := suggestions[1]
	assert.Contains(t, m.Title, "3号变压器")
	assert.Equal(t, float64(75), m.Confidence)
	// 日均峰时500 kWh，按30%可移 = 150 kWh/日
	assert.InDelta(t, 150*365, m.EstimatedSaving, 0.001)
	assert.InDelta(t, 150*0.95*365, m.EstimatedCostSaving, 0.001)
}

func TestLoadShift_NoDataReturnsNil(t *testing.T) {
	a := analysis.NewLoadShiftAnalyzer()
	suggestions, err := a.Analyze(&analysis.Context{Tariff: defaultTariff()})
	require.NoError(t, err)
	assert.Nil(t, suggestions)
}
