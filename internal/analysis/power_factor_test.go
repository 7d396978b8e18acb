package analysis_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proecheng/dcim-platform-sub000/internal/analysis"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

func compensationKVar(power, fromPF, toPF float64) float64 {
	return power * (math.Tan(math.Acos(fromPF)) - math.Tan(math.Acos(toPF)))
}

func TestPowerFactor_SiteCompensation(t *testing.T) {
	devID := int64(7)
	a := analysis.NewPowerFactorAnalyzer()
	actx := &analysis.Context{
		PowerSnapshots: []*models.PowerSnapshot{
			{ActivePower: 380, PowerFactor: 0.84},
			{ActivePower: 420, PowerFactor: 86}, // 百分数上报
			{ActivePower: 999, PowerFactor: 0},  // 无效，忽略
			{ActivePower: 50, PowerFactor: 0.70, DeviceID: &devID}, // 设备级，不参与站级
		},
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Equal(t, "power_factor", s.Category)
	// 站级均值0.85，低于0.90罚款线
	assert.Equal(t, models.PriorityCritical, s.Priority)
	assert.Equal(t, float64(85), s.Confidence)

	wantComp := compensationKVar(400, 0.85, 0.95)
	assert.InDelta(t, wantComp*50, s.EstimatedCostSaving, 0.01)
	// 回收期 = 75元/kVar ÷ 50元/kVar·年 × 12 = 18个月
	assert.InDelta(t, 18.0, s.PaybackMonths, 0.01)

	var params map[string]float64
	require.NoError(t, json.Unmarshal(s.Parameters, &params))
	assert.Equal(t, 0.85, params["current_pf"])
	assert.Equal(t, 0.95, params["target_pf"])
	assert.InDelta(t, wantComp, params["compensation_kvar"], 0.01)
}

func TestPowerFactor_MediumPriorityAbovePenaltyLine(t *testing.T) {
	a := analysis.NewPowerFactorAnalyzer()
	actx := &analysis.Context{
		PowerSnapshots: []*models.PowerSnapshot{
			{ActivePower: 300, PowerFactor: 0.93},
		},
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.PriorityMedium, suggestions[0].Priority)
}

func TestPowerFactor_DeviceCompensation(t *testing.T) {
	devID := int64(7)
	a := analysis.NewPowerFactorAnalyzer()
	actx := &analysis.Context{
		PowerSnapshots: []*models.PowerSnapshot{
			{ActivePower: 400, PowerFactor: 0.96}, // 站级达标
			{ActivePower: 50, PowerFactor: 0.70, DeviceID: &devID},
			{ActivePower: 50, PowerFactor: 0.70, DeviceID: &devID},
		},
		Devices: []*models.PowerDevice{
			{ID: devID, DeviceCode: "ACU-002", DeviceName: "空调2号", RatedPower: 60},
		},
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Contains(t, s.Title, "空调2号")
	assert.Equal(t, models.PriorityMedium, s.Priority)
	assert.Equal(t, float64(80), s.Confidence)
	wantComp := compensationKVar(50, 0.70, 0.95)
	assert.InDelta(t, wantComp*50, s.EstimatedCostSaving, 0.01)
	assert.NotEmpty(t, s.RelatedDevices)
}

func TestPowerFactor_NoSuggestionWhenHealthy(t *testing.T) {
	a := analysis.NewPowerFactorAnalyzer()
	actx := &analysis.Context{
		PowerSnapshots: []*models.PowerSnapshot{
			{ActivePower: 400, PowerFactor: 0.96},
			{ActivePower: 420, PowerFactor: 0.97},
		},
	}

	suggestions, err := a.Analyze(actx)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestPowerFactor_NoSnapshots(t *testing.T) {
	a := analysis.NewPowerFactorAnalyzer()
	suggestions, err := a.Analyze(&analysis.Context{})
	require.NoError(t, err)
	assert.Nil(t, suggestions)
}
